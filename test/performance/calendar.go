package performance

import (
	"context"
	"net/http"
	"time"

	"history-calendar-loadtest/internal/calendar"
	"history-calendar-loadtest/internal/config"
	"history-calendar-loadtest/internal/metrics"
)

// Calendar metric names.
const (
	MetricLatencyMs    = "latency_ms"
	MetricBodyBytes    = "body_bytes"
	MetricHTTP5xxRate  = "http_5xx_rate"
	MetricHTTP4xxRate  = "http_4xx_rate"
	MetricChecksFailed = "checks_failed"
)

// Check names.
const (
	CheckStatus200    = "status 200"
	CheckJSONParsable = "json parsable"
	CheckEnvelope     = "api wrapper shape"
)

// Exec function names referenced by scenarios.
const (
	ExecOnce       = "scenarioOnce"
	ExecMonthSweep = "scenarioMonthSweep"
)

const (
	jitterMin  = 100 * time.Millisecond
	jitterSpan = 500 * time.Millisecond
)

// CalendarScript holds the resolved request parameters and the iteration
// bodies that call GET /calendar.
type CalendarScript struct {
	target        string
	authorization string
	version       calendar.AppVersion
	legacy        calendar.LegacyShape
	year, month   string
	months        []string

	registry *metrics.Registry
	checker  *Checker

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewCalendarScript creates the calendar script and declares its metrics
func NewCalendarScript(cfg *config.Config, registry *metrics.Registry, checker *Checker) *CalendarScript {
	s := &CalendarScript{
		target:        cfg.TargetURL,
		authorization: cfg.AuthHeader(),
		version:       cfg.Version(),
		legacy:        cfg.LegacyShape(),
		year:          cfg.Year,
		month:         cfg.Month,
		months:        cfg.Months(),
		registry:      registry,
		checker:       checker,
		sleep:         sleepCtx,
	}
	// Declared up front so thresholds and the summary see them even when
	// no request completes.
	registry.Trend(MetricLatencyMs, metrics.Default)
	registry.Trend(MetricBodyBytes, metrics.Default)
	registry.Rate(MetricHTTP5xxRate)
	registry.Rate(MetricHTTP4xxRate)
	registry.Counter(MetricChecksFailed, metrics.Default)
	return s
}

// Funcs maps exec names to iteration bodies.
func (s *CalendarScript) Funcs() map[string]IterationFunc {
	return map[string]IterationFunc{
		ExecOnce:       s.scenarioOnce,
		ExecMonthSweep: s.scenarioMonthSweep,
	}
}

func (s *CalendarScript) scenarioOnce(ctx context.Context, vu *VU) {
	s.callCalendar(ctx, vu, s.year, s.month)
}

func (s *CalendarScript) scenarioMonthSweep(ctx context.Context, vu *VU) {
	for _, m := range s.months {
		if ctx.Err() != nil {
			return
		}
		s.callCalendar(ctx, vu, s.year, m)
	}
}

// callCalendar issues one request, records its metrics and checks, then
// sleeps a random think time.
func (s *CalendarScript) callCalendar(ctx context.Context, vu *VU, year, month string) *Response {
	url := calendar.BuildURL(s.target, year, month)
	tags := s.requestTags(vu)

	res := vu.Client.Get(ctx, url, calendar.Headers(s.authorization, s.version), tags)

	s.registry.Trend(MetricLatencyMs, metrics.Default).AddDuration(res.Duration, tags)
	s.registry.Trend(MetricBodyBytes, metrics.Default).Add(float64(len(res.Body)), tags)
	s.registry.Rate(MetricHTTP5xxRate).Add(res.Status >= 500, tags)
	s.registry.Rate(MetricHTTP4xxRate).Add(res.Status >= 400 && res.Status < 500, tags)

	failures := s.registry.Counter(MetricChecksFailed, metrics.Default)

	ok := s.checker.Check(tags,
		CheckResult{Name: CheckStatus200, OK: res.Status == http.StatusOK},
		CheckResult{Name: CheckJSONParsable, OK: res.Err == nil && calendar.Parsable(res.Body)},
	)
	if !ok {
		failures.Add(1, tags)
	}

	if body, parsed := calendar.ParseBody(res.Body); parsed {
		if !s.checker.Check(tags, CheckResult{Name: CheckEnvelope, OK: calendar.CheckEnvelope(body)}) {
			failures.Add(1, tags)
		}
		if !calendar.CheckResultShape(body, s.version, s.legacy) {
			failures.Add(1, tags)
		}
	}

	s.sleep(ctx, jitterMin+time.Duration(vu.Rand.Float64()*float64(jitterSpan)))
	return res
}

func (s *CalendarScript) requestTags(vu *VU) metrics.Tags {
	tags := make(metrics.Tags, len(vu.Tags)+2)
	for k, v := range vu.Tags {
		tags[k] = v
	}
	tags["endpoint"] = calendar.Path
	tags["appVersion"] = string(s.version)
	return tags
}
