package performance

import (
	"context"
	"math/rand"
	"time"

	"history-calendar-loadtest/internal/metrics"
	"history-calendar-loadtest/internal/thresholds"
)

// Executor selects how a scenario schedules iterations.
type Executor string

const (
	ConstantArrivalRate Executor = "constant-arrival-rate"
	RampingArrivalRate  Executor = "ramping-arrival-rate"
	PerVUIterations     Executor = "per-vu-iterations"
)

const (
	DefaultGracefulStop = 30 * time.Second
	DefaultMaxDuration  = 10 * time.Minute
)

// Stage moves the arrival rate linearly to Target over Duration.
type Stage struct {
	Target   float64       `json:"target"`
	Duration time.Duration `json:"duration"`
}

// ScenarioConfig describes one scenario of a run. Which fields apply depends
// on the executor.
type ScenarioConfig struct {
	Executor     Executor      `json:"executor"`
	Exec         string        `json:"exec"`
	StartTime    time.Duration `json:"startTime"`
	GracefulStop time.Duration `json:"gracefulStop"`
	Tags         metrics.Tags  `json:"tags,omitempty"`

	// constant-arrival-rate
	Rate     float64       `json:"rate,omitempty"`
	TimeUnit time.Duration `json:"timeUnit,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	// ramping-arrival-rate
	StartRate float64 `json:"startRate,omitempty"`
	Stages    []Stage `json:"stages,omitempty"`

	// arrival-rate executors
	PreAllocatedVUs int `json:"preAllocatedVUs,omitempty"`
	MaxVUs          int `json:"maxVUs,omitempty"`

	// per-vu-iterations
	VUs         int           `json:"vus,omitempty"`
	Iterations  int           `json:"iterations,omitempty"`
	MaxDuration time.Duration `json:"maxDuration,omitempty"`
}

func (sc ScenarioConfig) gracefulStop() time.Duration {
	if sc.GracefulStop > 0 {
		return sc.GracefulStop
	}
	return DefaultGracefulStop
}

func (sc ScenarioConfig) timeUnit() time.Duration {
	if sc.TimeUnit > 0 {
		return sc.TimeUnit
	}
	return time.Second
}

func (sc ScenarioConfig) maxVUs() int {
	if sc.MaxVUs > sc.PreAllocatedVUs {
		return sc.MaxVUs
	}
	return sc.PreAllocatedVUs
}

// Span is how long the scenario schedules new iterations, not counting
// its start offset or graceful stop.
func (sc ScenarioConfig) Span() time.Duration {
	switch sc.Executor {
	case ConstantArrivalRate:
		return sc.Duration
	case RampingArrivalRate:
		var total time.Duration
		for _, st := range sc.Stages {
			total += st.Duration
		}
		return total
	default:
		if sc.MaxDuration > 0 {
			return sc.MaxDuration
		}
		return DefaultMaxDuration
	}
}

// Options is the full plan of a run.
type Options struct {
	Scenarios         map[string]ScenarioConfig `json:"scenarios"`
	Thresholds        thresholds.Set            `json:"thresholds"`
	Tags              metrics.Tags              `json:"tags,omitempty"`
	SummaryTrendStats []string                  `json:"summaryTrendStats,omitempty"`
}

// VU is the per-worker state handed to each iteration. A VU runs one
// iteration at a time, so its fields need no locking.
type VU struct {
	ID       int64
	Scenario string
	Tags     metrics.Tags
	Rand     *rand.Rand
	Client   *Client
}

// IterationFunc is the body of one scenario iteration.
type IterationFunc func(ctx context.Context, vu *VU)
