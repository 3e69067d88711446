package performance

import (
	"context"
	"math/rand"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"history-calendar-loadtest/internal/config"
	"history-calendar-loadtest/internal/metrics"
	"history-calendar-loadtest/internal/testutils"
)

type CalendarScriptTestSuite struct {
	suite.Suite
	server   *testutils.MockCalendarServer
	cfg      *config.Config
	registry *metrics.Registry
	checker  *Checker
	script   *CalendarScript
	vu       *VU
	sleeps   []time.Duration
}

func TestCalendarScriptTestSuite(t *testing.T) {
	suite.Run(t, new(CalendarScriptTestSuite))
}

func (suite *CalendarScriptTestSuite) SetupSuite() {
	suite.server = testutils.NewMockCalendarServer()
}

func (suite *CalendarScriptTestSuite) TearDownSuite() {
	suite.server.Close()
}

func (suite *CalendarScriptTestSuite) SetupTest() {
	suite.server.Reset()
	suite.cfg = &config.Config{
		TargetURL:         suite.server.GetURL(),
		AccessToken:       "test-token",
		AppVersion:        "V2",
		Year:              "2025",
		Month:             "10",
		LegacyResultShape: "either",
		HTTPTimeout:       5 * time.Second,
	}
	suite.build()
}

func (suite *CalendarScriptTestSuite) build() {
	suite.registry = metrics.NewRegistry()
	declareBuiltins(suite.registry)
	suite.checker = NewChecker(suite.registry)
	suite.script = NewCalendarScript(suite.cfg, suite.registry, suite.checker)
	suite.sleeps = nil
	suite.script.sleep = func(_ context.Context, d time.Duration) bool {
		suite.sleeps = append(suite.sleeps, d)
		return true
	}
	suite.vu = &VU{
		ID:       1,
		Scenario: "test",
		Tags:     metrics.Tags{"scenario": "test"},
		Rand:     rand.New(rand.NewSource(1)),
		Client:   NewClient(suite.cfg.HTTPTimeout, suite.registry, nil),
	}
}

func (suite *CalendarScriptTestSuite) checksFailed() float64 {
	return suite.registry.Counter(MetricChecksFailed, metrics.Default).Count()
}

func (suite *CalendarScriptTestSuite) counts() map[string]CheckCount {
	out := map[string]CheckCount{}
	for _, c := range suite.checker.Counts() {
		out[c.Name] = c
	}
	return out
}

func (suite *CalendarScriptTestSuite) TestRequestShape() {
	suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

	req := suite.server.LastRequest()
	suite.Require().NotNil(req)
	suite.Equal("/calendar", req.Path)
	suite.Equal(map[string]string{"year": "2025", "month": "10"}, req.Query)
	suite.Equal("Bearer test-token", req.Header.Get("Authorization"))
	suite.Equal("V2", req.Header.Get("X-App-Version"))
	suite.Equal("application/json", req.Header.Get("Accept"))
}

func (suite *CalendarScriptTestSuite) TestHealthyResponse() {
	res := suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

	suite.Equal(http.StatusOK, res.Status)
	suite.Equal(0.0, suite.checksFailed())
	suite.Equal(1, suite.registry.Trend(MetricLatencyMs, metrics.Default).Count())
	suite.Equal(float64(len(testutils.BodyV2OK)), suite.registry.Trend(MetricBodyBytes, metrics.Default).Percentile(50))
	suite.Equal(0.0, suite.registry.Rate(MetricHTTP5xxRate).Value())
	suite.Equal(0.0, suite.registry.Rate(MetricHTTP4xxRate).Value())

	counts := suite.counts()
	suite.Equal(int64(1), counts[CheckStatus200].Passes)
	suite.Equal(int64(1), counts[CheckJSONParsable].Passes)
	suite.Equal(int64(1), counts[CheckEnvelope].Passes)

	suite.Require().Len(suite.sleeps, 1)
	suite.GreaterOrEqual(suite.sleeps[0], 100*time.Millisecond)
	suite.Less(suite.sleeps[0], 600*time.Millisecond)
}

func (suite *CalendarScriptTestSuite) TestMissingDatesCountsOneFailure() {
	suite.server.SetResponse(http.StatusOK, testutils.BodyMissingDates)

	suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

	suite.Equal(1.0, suite.checksFailed())
	// The version shape check is not a named check.
	for _, c := range suite.checker.Counts() {
		suite.Zero(c.Fails, c.Name)
	}
}

func (suite *CalendarScriptTestSuite) TestServerErrorStillValidatesShape() {
	suite.server.SetResponse(http.StatusInternalServerError, testutils.BodyServerError)

	suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

	counts := suite.counts()
	suite.Equal(int64(1), counts[CheckStatus200].Fails)
	suite.Equal(int64(1), counts[CheckJSONParsable].Passes)
	suite.Equal(int64(1), counts[CheckEnvelope].Passes)
	// status group failed, result null fails the shape check
	suite.Equal(2.0, suite.checksFailed())
	suite.Equal(1.0, suite.registry.Rate(MetricHTTP5xxRate).Value())
	suite.Equal(1.0, suite.registry.Rate(MetricHTTPReqFailed).Value())
}

func (suite *CalendarScriptTestSuite) TestUnauthorizedCountsAs4xx() {
	suite.server.SetResponse(http.StatusUnauthorized, testutils.BodyUnauthorized)

	suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

	suite.Equal(1.0, suite.registry.Rate(MetricHTTP4xxRate).Value())
	suite.Equal(0.0, suite.registry.Rate(MetricHTTP5xxRate).Value())
}

func (suite *CalendarScriptTestSuite) TestNonJSONBodySkipsShapeChecks() {
	suite.server.SetResponse(http.StatusBadGateway, testutils.BodyNotJSON)

	suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

	counts := suite.counts()
	suite.Equal(int64(1), counts[CheckJSONParsable].Fails)
	suite.NotContains(counts, CheckEnvelope)
	suite.Equal(1.0, suite.checksFailed())
}

func (suite *CalendarScriptTestSuite) TestLenientJSONCountsAsAbsent() {
	for _, body := range []string{"NaN", "01", "inf"} {
		suite.build()
		suite.server.SetResponse(http.StatusOK, body)

		suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

		counts := suite.counts()
		suite.Equal(int64(1), counts[CheckJSONParsable].Fails, body)
		suite.NotContains(counts, CheckEnvelope, body)
		suite.Equal(1.0, suite.checksFailed(), body)
	}
}

func (suite *CalendarScriptTestSuite) TestEnvelopeWithStringFlagFails() {
	suite.server.SetResponse(http.StatusOK, testutils.BodyStringSuccess)

	suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

	suite.Equal(int64(1), suite.counts()[CheckEnvelope].Fails)
	suite.Equal(1.0, suite.checksFailed())
}

func (suite *CalendarScriptTestSuite) TestLegacyArrayAccepted() {
	suite.cfg.AppVersion = "V1"
	suite.build()
	suite.server.SetResponse(http.StatusOK, testutils.BodyV1Array)

	suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

	suite.Equal("V1", suite.server.LastRequest().Header.Get("X-App-Version"))
	suite.Equal(0.0, suite.checksFailed())
}

func (suite *CalendarScriptTestSuite) TestLegacyDatesOnlyRejectsArray() {
	suite.cfg.AppVersion = "V1"
	suite.cfg.LegacyResultShape = "dates"
	suite.build()
	suite.server.SetResponse(http.StatusOK, testutils.BodyV1Array)

	suite.script.callCalendar(context.Background(), suite.vu, "2025", "10")

	suite.Equal(1.0, suite.checksFailed())
}

func (suite *CalendarScriptTestSuite) TestMonthSweepInListOrder() {
	suite.cfg.MonthList = " 03, 01 ,,12 "
	suite.build()

	suite.script.Funcs()[ExecMonthSweep](context.Background(), suite.vu)

	requests := suite.server.Requests()
	suite.Require().Len(requests, 3)
	suite.Equal("03", requests[0].Query["month"])
	suite.Equal("01", requests[1].Query["month"])
	suite.Equal("12", requests[2].Query["month"])
	suite.Len(suite.sleeps, 3)
}

func (suite *CalendarScriptTestSuite) TestMonthSweepFallsBackToMonth() {
	suite.script.Funcs()[ExecMonthSweep](context.Background(), suite.vu)

	requests := suite.server.Requests()
	suite.Require().Len(requests, 1)
	suite.Equal("10", requests[0].Query["month"])
}

func (suite *CalendarScriptTestSuite) TestRequestTags() {
	tags := suite.script.requestTags(suite.vu)
	suite.Equal("/calendar", tags["endpoint"])
	suite.Equal("V2", tags["appVersion"])
	suite.Equal("test", tags["scenario"])
}
