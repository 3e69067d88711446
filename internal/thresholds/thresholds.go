// Package thresholds evaluates pass/fail expressions such as "p(95)<300"
// against the aggregated metrics of a run.
package thresholds

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"history-calendar-loadtest/internal/metrics"
)

var exprPattern = regexp.MustCompile(`^\s*([a-z]+(?:\(\d+(?:\.\d+)?\))?)\s*(<=|>=|===|==|!=|<|>)\s*(-?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?)\s*$`)

// Threshold is one parsed expression of the form "<aggregate> <op> <number>".
type Threshold struct {
	Source string
	Agg    string
	Op     string
	Value  float64
}

// Parse parses expr. "===" is accepted as an alias of "==".
func Parse(expr string) (Threshold, error) {
	m := exprPattern.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold expression %q", expr)
	}
	v, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value in %q: %w", expr, err)
	}
	op := m[2]
	if op == "===" {
		op = "=="
	}
	return Threshold{Source: expr, Agg: m[1], Op: op, Value: v}, nil
}

// Holds reports whether the observed value satisfies the threshold.
func (t Threshold) Holds(observed float64) bool {
	switch t.Op {
	case "<":
		return observed < t.Value
	case "<=":
		return observed <= t.Value
	case ">":
		return observed > t.Value
	case ">=":
		return observed >= t.Value
	case "==":
		return observed == t.Value
	case "!=":
		return observed != t.Value
	}
	return false
}

// Set maps a metric name to its threshold expressions.
type Set map[string][]string

// Metrics returns the metric names of s in sorted order.
func (s Set) Metrics() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults are the pass criteria of a calendar run.
func Defaults() Set {
	return Set{
		"http_req_failed": {"rate<0.01"},
		"http_5xx_rate":   {"rate==0"},
		"http_4xx_rate":   {"rate<0.005"},
		"latency_ms":      {"p(95)<300"},
	}
}

// Failure describes one crossed threshold.
type Failure struct {
	Metric   string
	Source   string
	Observed float64
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s (observed %g)", f.Metric, f.Source, f.Observed)
}

// Report is the outcome of evaluating a Set.
type Report struct {
	Passed   bool
	Failures []Failure
}

// Compile parses every expression of s so configuration errors surface
// before any traffic is sent.
func Compile(s Set) (map[string][]Threshold, error) {
	out := make(map[string][]Threshold, len(s))
	for metric, exprs := range s {
		for _, expr := range exprs {
			t, err := Parse(expr)
			if err != nil {
				return nil, fmt.Errorf("metric %s: %w", metric, err)
			}
			out[metric] = append(out[metric], t)
		}
	}
	return out, nil
}

// Evaluate checks the compiled thresholds against reg and records each
// outcome on snap. A metric that was never registered does not fail.
func Evaluate(compiled map[string][]Threshold, reg *metrics.Registry, snap *metrics.Snapshot, elapsed time.Duration) Report {
	report := Report{Passed: true}

	names := make([]string, 0, len(compiled))
	for name := range compiled {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m, ok := reg.Get(name)
		if !ok {
			logrus.WithField("metric", name).Debug("Threshold metric has no samples, skipping")
			continue
		}
		for _, t := range compiled[name] {
			observed, err := m.Stat(t.Agg, elapsed)
			holds := err == nil && t.Holds(observed)
			if err != nil {
				logrus.WithError(err).WithField("metric", name).Warn("Threshold aggregate unavailable")
			}
			record(snap, name, t.Source, holds)
			if !holds {
				report.Passed = false
				report.Failures = append(report.Failures, Failure{Metric: name, Source: t.Source, Observed: observed})
			}
		}
	}
	return report
}

func record(snap *metrics.Snapshot, metric, source string, ok bool) {
	if snap == nil {
		return
	}
	summary, exists := snap.Metrics[metric]
	if !exists {
		return
	}
	if summary.Thresholds == nil {
		summary.Thresholds = make(map[string]metrics.ThresholdResult)
	}
	summary.Thresholds[source] = metrics.ThresholdResult{OK: ok}
	snap.Metrics[metric] = summary
}
