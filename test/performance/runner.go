package performance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"history-calendar-loadtest/internal/config"
	"history-calendar-loadtest/internal/history"
	"history-calendar-loadtest/internal/metrics"
	"history-calendar-loadtest/internal/models"
	"history-calendar-loadtest/internal/thresholds"
)

// Process exit codes of a run.
const (
	ExitOK               = 0
	ExitSetupError       = 1
	ExitThresholdsFailed = 99
)

// RunnerOptions select what to run and where outputs go. Empty fields fall
// back to the configuration. Plan replaces the default scenarios before
// Scenarios filters them.
type RunnerOptions struct {
	Plan        map[string]ScenarioConfig
	Scenarios   []string
	SummaryPath string
	ResultsBin  string
	MetricsAddr string
	Verbose     bool
	Stdout      io.Writer
}

// TestRunner wires configuration, engine, thresholds and outputs for one
// run.
type TestRunner struct {
	cfg        *config.Config
	opts       RunnerOptions
	options    Options
	thresholds map[string][]thresholds.Threshold
	history    *history.Recorder
}

// RunOutcome is what a finished run produced.
type RunOutcome struct {
	Summary  *SummaryData
	Figures  Figures
	Report   thresholds.Report
	ExitCode int
}

// NewTestRunner validates cfg and resolves the scenario plan.
func NewTestRunner(cfg *config.Config, opts RunnerOptions) (*TestRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := DefaultOptions(string(cfg.Version()))
	if len(opts.Plan) > 0 {
		options.Scenarios = opts.Plan
	}
	selected, err := SelectScenarios(options.Scenarios, opts.Scenarios)
	if err != nil {
		return nil, err
	}
	options.Scenarios = selected

	compiled, err := thresholds.Compile(options.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	if opts.SummaryPath == "" {
		opts.SummaryPath = cfg.SummaryPath
	}
	if opts.ResultsBin == "" {
		opts.ResultsBin = cfg.ResultsBin
	}
	if opts.MetricsAddr == "" {
		opts.MetricsAddr = cfg.MetricsAddr
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	return &TestRunner{
		cfg:        cfg,
		opts:       opts,
		options:    options,
		thresholds: compiled,
	}, nil
}

// Options returns the resolved plan.
func (tr *TestRunner) Options() Options {
	return tr.options
}

// WithHistory makes the runner save each finished run to rec.
func (tr *TestRunner) WithHistory(rec *history.Recorder) *TestRunner {
	tr.history = rec
	return tr
}

// Run executes the plan and produces the summary outputs. Only setup
// failures are returned as errors; crossed thresholds are reported through
// RunOutcome.ExitCode.
func (tr *TestRunner) Run(ctx context.Context) (*RunOutcome, error) {
	registry := metrics.NewRegistry()
	registry.SetTrendStats(tr.options.SummaryTrendStats)
	declareBuiltins(registry)

	if tr.opts.MetricsAddr != "" {
		exporter := NewPrometheusMirror(registry)
		serveCtx, stop := context.WithCancel(context.Background())
		defer stop()
		go func() {
			if err := exporter.Serve(serveCtx, tr.opts.MetricsAddr); err != nil {
				logrus.WithError(err).Error("Prometheus endpoint stopped")
			}
		}()
	}

	var results *ResultRecorder
	if tr.opts.ResultsBin != "" || tr.opts.Verbose {
		var err error
		if results, err = OpenResultFile(tr.opts.ResultsBin); err != nil {
			return nil, err
		}
	}

	client := NewClient(tr.cfg.HTTPTimeout, registry, results)
	checker := NewChecker(registry)
	script := NewCalendarScript(tr.cfg, registry, checker)

	tester, err := NewLoadTester(tr.options, script.Funcs(), registry, client)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"target":      tr.cfg.TargetURL,
		"app_version": tr.cfg.Version(),
		"scenarios":   ScenarioNames(tr.options.Scenarios),
		"planned":     PlanDuration(tr.options.Scenarios),
	}).Info("Running calendar load test")

	startedAt := time.Now()
	elapsed, runErr := tester.Run(ctx)
	finishedAt := time.Now()
	interrupted := ctx.Err() != nil

	if results != nil {
		if err := results.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close results file")
		}
	}

	snap := registry.Snapshot(elapsed)
	report := thresholds.Evaluate(tr.thresholds, registry, &snap, elapsed)
	for _, f := range report.Failures {
		logrus.WithFields(logrus.Fields{
			"metric":    f.Metric,
			"threshold": f.Source,
			"observed":  f.Observed,
		}).Warn("Threshold crossed")
	}

	info := tr.runInfo()
	figures := ExtractFigures(snap)
	fmt.Fprint(tr.opts.Stdout, RenderText(info, figures))

	if tr.opts.Verbose && results != nil {
		fmt.Fprintln(tr.opts.Stdout)
		if err := results.Report(tr.opts.Stdout); err != nil {
			logrus.WithError(err).Error("Failed to render results report")
		}
	}

	summary := NewSummaryData(info, tr.options, snap, checker.Counts(), elapsed, interrupted, report.Passed)
	if tr.opts.SummaryPath != "" {
		if err := summary.WriteFile(tr.opts.SummaryPath); err != nil {
			logrus.WithError(err).WithField("path", tr.opts.SummaryPath).Error("Failed to write summary")
		} else {
			logrus.WithField("path", tr.opts.SummaryPath).Info("Summary saved")
		}
	}

	if tr.history != nil && tr.history.Enabled() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		tr.history.Save(saveCtx, tr.runRecord(summary, figures, report, snap, startedAt, finishedAt))
		cancel()
	}

	outcome := &RunOutcome{
		Summary:  summary,
		Figures:  figures,
		Report:   report,
		ExitCode: ExitOK,
	}
	if !report.Passed {
		outcome.ExitCode = ExitThresholdsFailed
	}
	if runErr != nil {
		return outcome, fmt.Errorf("load test aborted: %w", runErr)
	}
	return outcome, nil
}

func (tr *TestRunner) runInfo() RunInfo {
	return RunInfo{
		TargetURL:  tr.cfg.TargetURL,
		AppVersion: string(tr.cfg.Version()),
		Year:       tr.cfg.Year,
		Month:      tr.cfg.Month,
		MonthList:  tr.cfg.MonthList,
	}
}

func (tr *TestRunner) runRecord(summary *SummaryData, f Figures, report thresholds.Report, snap metrics.Snapshot, startedAt, finishedAt time.Time) *models.RunRecord {
	failed := make([]string, 0, len(report.Failures))
	for _, fl := range report.Failures {
		failed = append(failed, fl.Metric+": "+fl.Source)
	}

	raw, err := json.Marshal(summary)
	if err != nil {
		logrus.WithError(err).Warn("Failed to encode summary for run history")
		raw = []byte("{}")
	}

	return &models.RunRecord{
		ID:               uuid.New(),
		TargetURL:        summary.Run.TargetURL,
		AppVersion:       summary.Run.AppVersion,
		Year:             summary.Run.Year,
		Month:            summary.Run.Month,
		MonthList:        summary.Run.MonthList,
		Scenarios:        strings.Join(ScenarioNames(tr.options.Scenarios), ","),
		Status:           models.StatusFor(report.Passed, summary.State.Interrupted),
		Requests:         int64(f.Requests),
		FailRate:         f.FailRate,
		Rate4xx:          f.Rate4xx,
		Rate5xx:          f.Rate5xx,
		P95LatencyMs:     f.P95Latency,
		ChecksFailed:     int64(snap.ValueOr(MetricChecksFailed, "count", 0)),
		ThresholdsPassed: report.Passed,
		FailedThresholds: failed,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		Summary:          string(raw),
	}
}

// NewPrometheusMirror attaches a Prometheus exporter to registry.
func NewPrometheusMirror(registry *metrics.Registry) *metrics.Exporter {
	exporter := metrics.NewExporter("loadtest")
	registry.SetObserver(exporter)
	return exporter
}

func declareBuiltins(registry *metrics.Registry) {
	registry.Counter(MetricHTTPReqs, metrics.Default)
	registry.Trend(MetricHTTPReqDuration, metrics.Time)
	registry.Rate(MetricHTTPReqFailed)
	registry.Counter(MetricDataReceived, metrics.Data)
	registry.Counter(MetricIterations, metrics.Default)
	registry.Trend(MetricIterationDuration, metrics.Time)
	registry.Counter(MetricDroppedIterations, metrics.Default)
	registry.Gauge(MetricVUsMax, metrics.Default)
	registry.Rate(MetricChecks)
}
