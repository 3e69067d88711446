package thresholds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"history-calendar-loadtest/internal/metrics"
)

func TestParse(t *testing.T) {
	cases := []struct {
		expr  string
		agg   string
		op    string
		value float64
	}{
		{"rate<0.01", "rate", "<", 0.01},
		{"p(95)<300", "p(95)", "<", 300},
		{"p(99.9) <= 1500", "p(99.9)", "<=", 1500},
		{"rate==0", "rate", "==", 0},
		{"rate===0", "rate", "==", 0},
		{"count>=10", "count", ">=", 10},
		{"avg != -1", "avg", "!=", -1},
	}
	for _, tc := range cases {
		th, err := Parse(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.agg, th.Agg, tc.expr)
		assert.Equal(t, tc.op, th.Op, tc.expr)
		assert.Equal(t, tc.value, th.Value, tc.expr)
		assert.Equal(t, tc.expr, th.Source)
	}

	for _, bad := range []string{"", "rate", "rate<", "<0.1", "rate~0.1", "P(95)<300", "rate<abc"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestHolds(t *testing.T) {
	th, _ := Parse("rate<0.01")
	assert.True(t, th.Holds(0.009))
	assert.False(t, th.Holds(0.01))

	th, _ = Parse("rate==0")
	assert.True(t, th.Holds(0))
	assert.False(t, th.Holds(0.0001))

	th, _ = Parse("count>=3")
	assert.True(t, th.Holds(3))
	assert.False(t, th.Holds(2))
}

func TestCompileRejectsBadExpression(t *testing.T) {
	_, err := Compile(Set{"latency_ms": {"p(95)<300", "p95<300"}})
	assert.ErrorContains(t, err, "latency_ms")

	compiled, err := Compile(Defaults())
	require.NoError(t, err)
	assert.Len(t, compiled, 4)
}

func TestSetMetricsSorted(t *testing.T) {
	assert.Equal(t, []string{"http_4xx_rate", "http_5xx_rate", "http_req_failed", "latency_ms"}, Defaults().Metrics())
	assert.Empty(t, Set{}.Metrics())
}

type EvaluateTestSuite struct {
	suite.Suite
	reg      *metrics.Registry
	compiled map[string][]Threshold
}

func TestEvaluateTestSuite(t *testing.T) {
	suite.Run(t, new(EvaluateTestSuite))
}

func (suite *EvaluateTestSuite) SetupTest() {
	suite.reg = metrics.NewRegistry()
	compiled, err := Compile(Defaults())
	suite.Require().NoError(err)
	suite.compiled = compiled
}

func (suite *EvaluateTestSuite) feed(requests, failed, fivexx, fourxx int, latency float64) {
	failedRate := suite.reg.Rate("http_req_failed")
	rate5xx := suite.reg.Rate("http_5xx_rate")
	rate4xx := suite.reg.Rate("http_4xx_rate")
	trend := suite.reg.Trend("latency_ms", metrics.Time)
	for i := 0; i < requests; i++ {
		failedRate.Add(i < failed, nil)
		rate5xx.Add(i < fivexx, nil)
		rate4xx.Add(i < fourxx, nil)
		trend.Add(latency, nil)
	}
}

func (suite *EvaluateTestSuite) TestAllPass() {
	suite.feed(1000, 5, 0, 2, 120)

	snap := suite.reg.Snapshot(time.Minute)
	report := Evaluate(suite.compiled, suite.reg, &snap, time.Minute)

	suite.True(report.Passed)
	suite.Empty(report.Failures)
	suite.True(snap.Metrics["latency_ms"].Thresholds["p(95)<300"].OK)
	suite.True(snap.Metrics["http_5xx_rate"].Thresholds["rate==0"].OK)
}

func (suite *EvaluateTestSuite) TestSingleServerErrorFails() {
	suite.feed(1000, 1, 1, 0, 120)

	snap := suite.reg.Snapshot(time.Minute)
	report := Evaluate(suite.compiled, suite.reg, &snap, time.Minute)

	suite.False(report.Passed)
	suite.Require().Len(report.Failures, 1)
	suite.Equal("http_5xx_rate", report.Failures[0].Metric)
	suite.Equal("rate==0", report.Failures[0].Source)
	suite.InDelta(0.001, report.Failures[0].Observed, 1e-9)
	suite.False(snap.Metrics["http_5xx_rate"].Thresholds["rate==0"].OK)
	suite.Contains(report.Failures[0].String(), "http_5xx_rate: rate==0")
}

func (suite *EvaluateTestSuite) TestSlowLatencyFails() {
	suite.feed(100, 0, 0, 0, 450)

	snap := suite.reg.Snapshot(time.Minute)
	report := Evaluate(suite.compiled, suite.reg, &snap, time.Minute)

	suite.False(report.Passed)
	suite.Require().Len(report.Failures, 1)
	suite.Equal("latency_ms", report.Failures[0].Metric)
	suite.Equal(450.0, report.Failures[0].Observed)
}

func (suite *EvaluateTestSuite) TestUnregisteredMetricIsSkipped() {
	snap := suite.reg.Snapshot(time.Minute)
	report := Evaluate(suite.compiled, suite.reg, &snap, time.Minute)

	suite.True(report.Passed)
	suite.Empty(snap.Metrics)
}

func (suite *EvaluateTestSuite) TestUnknownAggregateFails() {
	suite.reg.Counter("iterations", metrics.Default).Add(3, nil)
	compiled, err := Compile(Set{"iterations": {"p(95)<10"}})
	suite.Require().NoError(err)

	report := Evaluate(compiled, suite.reg, nil, time.Second)
	suite.False(report.Passed)
}
