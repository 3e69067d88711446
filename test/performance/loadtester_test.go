package performance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"history-calendar-loadtest/internal/metrics"
)

type LoadTesterTestSuite struct {
	suite.Suite
	registry *metrics.Registry
	calls    atomic.Int64
}

func TestLoadTesterTestSuite(t *testing.T) {
	suite.Run(t, new(LoadTesterTestSuite))
}

func (suite *LoadTesterTestSuite) SetupTest() {
	suite.registry = metrics.NewRegistry()
	declareBuiltins(suite.registry)
	suite.calls.Store(0)
}

func (suite *LoadTesterTestSuite) run(ctx context.Context, scenarios map[string]ScenarioConfig, fn IterationFunc) time.Duration {
	tester, err := NewLoadTester(
		Options{Scenarios: scenarios, Tags: metrics.Tags{"service": "calendar"}},
		map[string]IterationFunc{"exec": fn},
		suite.registry,
		nil,
	)
	suite.Require().NoError(err)

	elapsed, err := tester.Run(ctx)
	suite.Require().NoError(err)
	return elapsed
}

func (suite *LoadTesterTestSuite) count(context.Context, *VU) {
	suite.calls.Add(1)
}

func (suite *LoadTesterTestSuite) iterations() float64 {
	return suite.registry.Counter(MetricIterations, metrics.Default).Count()
}

func (suite *LoadTesterTestSuite) TestConstantArrivalRate() {
	suite.run(context.Background(), map[string]ScenarioConfig{
		"steady": {
			Executor:        ConstantArrivalRate,
			Exec:            "exec",
			Rate:            20,
			Duration:        500 * time.Millisecond,
			PreAllocatedVUs: 2,
		},
	}, suite.count)

	calls := suite.calls.Load()
	suite.GreaterOrEqual(calls, int64(5))
	suite.LessOrEqual(calls, int64(11))
	suite.Equal(float64(calls), suite.iterations())
	suite.Equal(0.0, suite.registry.Counter(MetricDroppedIterations, metrics.Default).Count())
}

func (suite *LoadTesterTestSuite) TestRampingArrivalRate() {
	suite.run(context.Background(), map[string]ScenarioConfig{
		"ramp": {
			Executor:        RampingArrivalRate,
			Exec:            "exec",
			StartRate:       10,
			PreAllocatedVUs: 1,
			MaxVUs:          4,
			Stages: []Stage{
				{Target: 30, Duration: 300 * time.Millisecond},
				{Target: 0, Duration: 200 * time.Millisecond},
			},
		},
	}, suite.count)

	// 6 + 3 planned hits
	calls := suite.calls.Load()
	suite.GreaterOrEqual(calls, int64(6))
	suite.LessOrEqual(calls, int64(9))
}

func (suite *LoadTesterTestSuite) TestDroppedIterations() {
	slow := func(ctx context.Context, vu *VU) {
		suite.calls.Add(1)
		sleepCtx(ctx, 200*time.Millisecond)
	}

	suite.run(context.Background(), map[string]ScenarioConfig{
		"busy": {
			Executor:        ConstantArrivalRate,
			Exec:            "exec",
			Rate:            50,
			Duration:        300 * time.Millisecond,
			PreAllocatedVUs: 1,
			MaxVUs:          1,
		},
	}, slow)

	suite.Greater(suite.registry.Counter(MetricDroppedIterations, metrics.Default).Count(), 0.0)
	suite.GreaterOrEqual(suite.calls.Load(), int64(1))
	vus, err := suite.registry.Gauge(MetricVUsMax, metrics.Default).Stat("max", 0)
	suite.NoError(err)
	suite.Equal(1.0, vus)
}

func (suite *LoadTesterTestSuite) TestPerVUIterations() {
	seen := make(chan int64, 10)
	fn := func(_ context.Context, vu *VU) {
		suite.calls.Add(1)
		seen <- vu.ID
		suite.Equal("sweep", vu.Tags["scenario"])
		suite.Equal("calendar", vu.Tags["service"])
	}

	suite.run(context.Background(), map[string]ScenarioConfig{
		"sweep": {Executor: PerVUIterations, Exec: "exec", VUs: 3, Iterations: 2},
	}, fn)
	close(seen)

	suite.Equal(int64(6), suite.calls.Load())
	suite.Equal(6.0, suite.iterations())

	perVU := map[int64]int{}
	for id := range seen {
		perVU[id]++
	}
	suite.Len(perVU, 3)
	for _, n := range perVU {
		suite.Equal(2, n)
	}
}

func (suite *LoadTesterTestSuite) TestInterruptedIterationsAreNotCounted() {
	blocked := func(ctx context.Context, _ *VU) {
		suite.calls.Add(1)
		<-ctx.Done()
	}

	suite.run(context.Background(), map[string]ScenarioConfig{
		"stuck": {
			Executor:     PerVUIterations,
			Exec:         "exec",
			VUs:          2,
			Iterations:   1,
			MaxDuration:  50 * time.Millisecond,
			GracefulStop: 50 * time.Millisecond,
		},
	}, blocked)

	suite.Equal(int64(2), suite.calls.Load())
	suite.Equal(0.0, suite.iterations())
}

func (suite *LoadTesterTestSuite) TestPanicIsRecovered() {
	boom := func(context.Context, *VU) {
		suite.calls.Add(1)
		panic("boom")
	}

	suite.run(context.Background(), map[string]ScenarioConfig{
		"panics": {Executor: PerVUIterations, Exec: "exec", VUs: 1, Iterations: 3},
	}, boom)

	suite.Equal(int64(3), suite.calls.Load())
}

func (suite *LoadTesterTestSuite) TestStartTimeDelaysScenario() {
	var startedAfter atomic.Int64
	begin := time.Now()
	fn := func(context.Context, *VU) {
		startedAfter.Store(int64(time.Since(begin)))
	}

	suite.run(context.Background(), map[string]ScenarioConfig{
		"later": {Executor: PerVUIterations, Exec: "exec", VUs: 1, Iterations: 1, StartTime: 100 * time.Millisecond},
	}, fn)

	suite.GreaterOrEqual(time.Duration(startedAfter.Load()), 100*time.Millisecond)
}

func (suite *LoadTesterTestSuite) TestCancelEndsRunEarly() {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	elapsed := suite.run(ctx, map[string]ScenarioConfig{
		"long": {
			Executor:        ConstantArrivalRate,
			Exec:            "exec",
			Rate:            10,
			Duration:        time.Minute,
			PreAllocatedVUs: 1,
		},
		"pending": {Executor: PerVUIterations, Exec: "exec", VUs: 1, Iterations: 1, StartTime: time.Minute},
	}, suite.count)

	suite.Less(elapsed, 5*time.Second)
}

func (suite *LoadTesterTestSuite) TestInvalidPlans() {
	funcs := map[string]IterationFunc{"exec": suite.count}
	for name, scenarios := range map[string]map[string]ScenarioConfig{
		"empty":            {},
		"unknown exec":     {"a": {Executor: PerVUIterations, Exec: "missing", VUs: 1, Iterations: 1}},
		"unknown executor": {"a": {Executor: "shared-iterations", Exec: "exec"}},
		"no iterations":    {"a": {Executor: PerVUIterations, Exec: "exec", VUs: 1}},
		"no vus":           {"a": {Executor: ConstantArrivalRate, Exec: "exec", Rate: 1, Duration: time.Second}},
		"bad pacer":        {"a": {Executor: RampingArrivalRate, Exec: "exec", PreAllocatedVUs: 1}},
	} {
		_, err := NewLoadTester(Options{Scenarios: scenarios}, funcs, suite.registry, nil)
		suite.Error(err, name)
	}
}
