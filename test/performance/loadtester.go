package performance

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"golang.org/x/sync/errgroup"

	"history-calendar-loadtest/internal/metrics"
)

// Built-in execution metric names.
const (
	MetricIterations        = "iterations"
	MetricIterationDuration = "iteration_duration"
	MetricDroppedIterations = "dropped_iterations"
	MetricVUsMax            = "vus_max"
)

// LoadTester runs the scenarios of an Options plan against a set of
// iteration functions.
type LoadTester struct {
	options  Options
	funcs    map[string]IterationFunc
	registry *metrics.Registry
	client   *Client

	vuSeq    atomic.Int64
	vusTotal atomic.Int64
}

// NewLoadTester validates the plan and returns a tester for it.
func NewLoadTester(options Options, funcs map[string]IterationFunc, registry *metrics.Registry, client *Client) (*LoadTester, error) {
	if len(options.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios to run")
	}
	for name, sc := range options.Scenarios {
		if _, ok := funcs[sc.Exec]; !ok {
			return nil, fmt.Errorf("scenario %s: unknown exec function %q", name, sc.Exec)
		}
		switch sc.Executor {
		case ConstantArrivalRate, RampingArrivalRate:
			if _, err := newPacer(sc); err != nil {
				return nil, fmt.Errorf("scenario %s: %w", name, err)
			}
			if sc.maxVUs() <= 0 {
				return nil, fmt.Errorf("scenario %s: needs at least one VU", name)
			}
		case PerVUIterations:
			if sc.VUs <= 0 || sc.Iterations <= 0 {
				return nil, fmt.Errorf("scenario %s: vus and iterations must be positive", name)
			}
		default:
			return nil, fmt.Errorf("scenario %s: unknown executor %q", name, sc.Executor)
		}
	}
	return &LoadTester{
		options:  options,
		funcs:    funcs,
		registry: registry,
		client:   client,
	}, nil
}

// Run executes every scenario concurrently, each after its start offset.
// Cancelling ctx ends the run early; Run still returns normally so a
// summary can be produced.
func (lt *LoadTester) Run(ctx context.Context) (time.Duration, error) {
	names := make([]string, 0, len(lt.options.Scenarios))
	for name := range lt.options.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	logrus.WithFields(logrus.Fields{
		"scenarios": names,
	}).Info("Starting load test")

	startTime := time.Now()
	var g errgroup.Group
	for _, name := range names {
		name, sc := name, lt.options.Scenarios[name]
		g.Go(func() error {
			if !sleepCtx(ctx, sc.StartTime) {
				return nil
			}
			return lt.runScenario(ctx, name, sc)
		})
	}
	err := g.Wait()
	elapsed := time.Since(startTime)

	logrus.WithFields(logrus.Fields{
		"duration":    elapsed,
		"interrupted": ctx.Err() != nil,
	}).Info("Load test completed")
	return elapsed, err
}

func (lt *LoadTester) runScenario(ctx context.Context, name string, sc ScenarioConfig) error {
	log := logrus.WithFields(logrus.Fields{
		"scenario": name,
		"executor": sc.Executor,
	})
	log.Info("Scenario started")
	defer log.Info("Scenario finished")

	fn := lt.funcs[sc.Exec]
	switch sc.Executor {
	case ConstantArrivalRate, RampingArrivalRate:
		pacer, err := newPacer(sc)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", name, err)
		}
		lt.runArrivalRate(ctx, name, sc, pacer, fn)
	case PerVUIterations:
		lt.runPerVUIterations(ctx, name, sc, fn)
	}
	return nil
}

// runArrivalRate starts iterations at the pacer's rate. Each iteration needs
// a free VU; when none is free and maxVUs is reached the iteration is
// dropped.
func (lt *LoadTester) runArrivalRate(ctx context.Context, name string, sc ScenarioConfig, pacer vegeta.Pacer, fn IterationFunc) {
	maxVUs := sc.maxVUs()
	pool := make(chan *VU, maxVUs)
	allocated := 0
	for ; allocated < sc.PreAllocatedVUs; allocated++ {
		pool <- lt.newVU(name, sc)
	}

	tags := lt.scenarioTags(name, sc)
	dropped := lt.registry.Counter(MetricDroppedIterations, metrics.Default)

	iterCtx, cancelIters := context.WithCancel(ctx)
	defer cancelIters()

	var wg sync.WaitGroup
	span := sc.Span()
	began := time.Now()
	var hits uint64

	for {
		elapsed := time.Since(began)
		if elapsed >= span || ctx.Err() != nil {
			break
		}
		wait, stop := pacer.Pace(elapsed, hits)
		if stop {
			break
		}
		if wait > 0 {
			if remaining := span - elapsed; wait > remaining {
				wait = remaining
			}
			if !sleepCtx(ctx, wait) {
				break
			}
			continue
		}
		hits++

		var vu *VU
		select {
		case vu = <-pool:
		default:
			if allocated >= maxVUs {
				dropped.Add(1, tags)
				continue
			}
			vu = lt.newVU(name, sc)
			allocated++
			logrus.WithFields(logrus.Fields{
				"scenario":  name,
				"allocated": allocated,
				"rate":      pacer.Rate(elapsed),
			}).Debug("Allocated VU")
		}

		wg.Add(1)
		go func(vu *VU) {
			defer wg.Done()
			lt.iterate(iterCtx, fn, vu)
			pool <- vu
		}(vu)
	}

	lt.stopGracefully(name, &wg, sc.gracefulStop(), cancelIters)
}

// runPerVUIterations runs Iterations sequential iterations on each of VUs
// VUs. No new iteration starts after MaxDuration.
func (lt *LoadTester) runPerVUIterations(ctx context.Context, name string, sc ScenarioConfig, fn IterationFunc) {
	startCtx, cancelStart := context.WithTimeout(ctx, sc.Span())
	defer cancelStart()
	iterCtx, cancelIters := context.WithCancel(ctx)
	defer cancelIters()

	var wg sync.WaitGroup
	for i := 0; i < sc.VUs; i++ {
		vu := lt.newVU(name, sc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < sc.Iterations; n++ {
				if startCtx.Err() != nil {
					return
				}
				lt.iterate(iterCtx, fn, vu)
			}
		}()
	}

	done := waitChan(&wg)
	select {
	case <-done:
		return
	case <-startCtx.Done():
	}
	lt.stopGracefully(name, &wg, sc.gracefulStop(), cancelIters)
}

// stopGracefully waits up to grace for in-flight iterations, then cancels
// them and waits for their goroutines to return.
func (lt *LoadTester) stopGracefully(name string, wg *sync.WaitGroup, grace time.Duration, cancel context.CancelFunc) {
	done := waitChan(wg)
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		logrus.WithFields(logrus.Fields{
			"scenario":      name,
			"graceful_stop": grace,
		}).Warn("Graceful stop elapsed, interrupting iterations")
		cancel()
		<-done
	}
}

func (lt *LoadTester) iterate(ctx context.Context, fn IterationFunc, vu *VU) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"scenario": vu.Scenario,
					"vu":       vu.ID,
					"panic":    r,
				}).Error("Iteration panicked")
			}
		}()
		fn(ctx, vu)
	}()

	// Interrupted iterations are not counted.
	if ctx.Err() != nil {
		return
	}
	lt.registry.Counter(MetricIterations, metrics.Default).Add(1, vu.Tags)
	lt.registry.Trend(MetricIterationDuration, metrics.Time).AddDuration(time.Since(start), vu.Tags)
}

func (lt *LoadTester) newVU(name string, sc ScenarioConfig) *VU {
	id := lt.vuSeq.Add(1)
	total := lt.vusTotal.Add(1)
	tags := lt.scenarioTags(name, sc)
	lt.registry.Gauge(MetricVUsMax, metrics.Default).Max(float64(total), tags)
	return &VU{
		ID:       id,
		Scenario: name,
		Tags:     tags,
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano() + id)),
		Client:   lt.client,
	}
}

func (lt *LoadTester) scenarioTags(name string, sc ScenarioConfig) metrics.Tags {
	tags := make(metrics.Tags, len(lt.options.Tags)+len(sc.Tags)+1)
	for k, v := range lt.options.Tags {
		tags[k] = v
	}
	for k, v := range sc.Tags {
		tags[k] = v
	}
	tags["scenario"] = name
	return tags
}

func waitChan(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// sleepCtx sleeps for d and reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
