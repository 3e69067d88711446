package performance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"history-calendar-loadtest/internal/metrics"
	"history-calendar-loadtest/internal/thresholds"
)

// Scenario names of the default plan.
const (
	ScenarioSmoke      = "smoke"
	ScenarioLoad       = "load"
	ScenarioStress     = "stress"
	ScenarioMonthSweep = "month_sweep"
)

// GetDefaultScenarios returns the calendar traffic shapes.
func GetDefaultScenarios() map[string]ScenarioConfig {
	return map[string]ScenarioConfig{
		ScenarioSmoke: {
			Executor:        ConstantArrivalRate,
			Exec:            ExecOnce,
			Rate:            2,
			TimeUnit:        time.Second,
			Duration:        30 * time.Second,
			PreAllocatedVUs: 5,
			Tags:            metrics.Tags{"scenario": ScenarioSmoke},
		},
		ScenarioLoad: {
			Executor:        RampingArrivalRate,
			Exec:            ExecOnce,
			StartRate:       5,
			TimeUnit:        time.Second,
			PreAllocatedVUs: 20,
			MaxVUs:          50,
			Stages: []Stage{
				{Target: 20, Duration: time.Minute},
				{Target: 20, Duration: 2 * time.Minute},
				{Target: 0, Duration: 30 * time.Second},
			},
			StartTime: 40 * time.Second,
			Tags:      metrics.Tags{"scenario": ScenarioLoad},
		},
		ScenarioStress: {
			Executor:        RampingArrivalRate,
			Exec:            ExecOnce,
			StartRate:       10,
			TimeUnit:        time.Second,
			PreAllocatedVUs: 30,
			MaxVUs:          120,
			Stages: []Stage{
				{Target: 30, Duration: 45 * time.Second},
				{Target: 60, Duration: 45 * time.Second},
				{Target: 90, Duration: 45 * time.Second},
				{Target: 0, Duration: 30 * time.Second},
			},
			StartTime: 3 * time.Minute,
			Tags:      metrics.Tags{"scenario": ScenarioStress},
		},
		ScenarioMonthSweep: {
			Executor:   PerVUIterations,
			Exec:       ExecMonthSweep,
			VUs:        1,
			Iterations: 1,
			StartTime:  5 * time.Minute,
			Tags:       metrics.Tags{"scenario": ScenarioMonthSweep},
		},
	}
}

// DefaultOptions is the full plan: every default scenario, the calendar
// thresholds and the run-wide tags.
func DefaultOptions(appVersion string) Options {
	return Options{
		Scenarios:  GetDefaultScenarios(),
		Thresholds: thresholds.Defaults(),
		Tags: metrics.Tags{
			"service":    "calendar",
			"endpoint":   "/calendar",
			"appVersion": appVersion,
		},
		SummaryTrendStats: metrics.DefaultTrendStats,
	}
}

// SelectScenarios keeps only the named scenarios and shifts their start
// times so the earliest one starts immediately. An empty selection keeps
// the plan unchanged.
func SelectScenarios(all map[string]ScenarioConfig, names []string) (map[string]ScenarioConfig, error) {
	if len(names) == 0 {
		return all, nil
	}
	selected := make(map[string]ScenarioConfig, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		sc, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("scenario %q not found (available: %s)", name, strings.Join(ScenarioNames(all), ", "))
		}
		selected[name] = sc
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no scenarios selected")
	}

	earliest := time.Duration(-1)
	for _, sc := range selected {
		if earliest < 0 || sc.StartTime < earliest {
			earliest = sc.StartTime
		}
	}
	for name, sc := range selected {
		sc.StartTime -= earliest
		selected[name] = sc
	}
	return selected, nil
}

// ScenarioNames returns the scenario names ordered by start time.
func ScenarioNames(all map[string]ScenarioConfig) []string {
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := all[names[i]], all[names[j]]
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return names[i] < names[j]
	})
	return names
}

// PlanDuration is the longest start offset plus scheduling span of the
// plan, without graceful stops.
func PlanDuration(all map[string]ScenarioConfig) time.Duration {
	var longest time.Duration
	for _, sc := range all {
		span := sc.Span()
		if sc.Executor == PerVUIterations {
			span = 0
		}
		if end := sc.StartTime + span; end > longest {
			longest = end
		}
	}
	return longest
}

// DescribeScenario renders one line of executor settings.
func DescribeScenario(name string, sc ScenarioConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-22s start=%-6s ", name, sc.Executor, sc.StartTime)
	switch sc.Executor {
	case ConstantArrivalRate:
		fmt.Fprintf(&b, "rate=%g/%s duration=%s vus=%d/%d", sc.Rate, sc.timeUnit(), sc.Duration, sc.PreAllocatedVUs, sc.maxVUs())
	case RampingArrivalRate:
		stages := make([]string, 0, len(sc.Stages))
		for _, st := range sc.Stages {
			stages = append(stages, fmt.Sprintf("%g@%s", st.Target, st.Duration))
		}
		fmt.Fprintf(&b, "startRate=%g/%s stages=[%s] vus=%d/%d", sc.StartRate, sc.timeUnit(), strings.Join(stages, " "), sc.PreAllocatedVUs, sc.maxVUs())
	case PerVUIterations:
		fmt.Fprintf(&b, "vus=%d iterations=%d", sc.VUs, sc.Iterations)
	}
	return b.String()
}
