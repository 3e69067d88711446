package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"history-calendar-loadtest/internal/history"
	"history-calendar-loadtest/internal/metrics"
	"history-calendar-loadtest/test/performance"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	Scenarios   []string
	SummaryPath string
	ResultsBin  string
	MetricsAddr string
	NoHistory   bool

	// ad-hoc constant-rate plan
	Rate     float64
	Duration time.Duration
	VUs      int
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [--scenario name]...",
		Short: "Run the calendar load test and write the summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return &exitError{code: performance.ExitSetupError, err: err}
			}

			runnerOpts := performance.RunnerOptions{
				Scenarios:   opts.Scenarios,
				SummaryPath: opts.SummaryPath,
				ResultsBin:  opts.ResultsBin,
				MetricsAddr: opts.MetricsAddr,
				Verbose:     root.Verbose,
				Stdout:      cmd.OutOrStdout(),
			}
			if opts.Rate > 0 {
				plan, err := adHocPlan(opts.Rate, opts.Duration, opts.VUs)
				if err != nil {
					return &exitError{code: performance.ExitSetupError, err: err}
				}
				runnerOpts.Plan = plan
				runnerOpts.Scenarios = nil
			}

			runner, err := performance.NewTestRunner(cfg, runnerOpts)
			if err != nil {
				return &exitError{code: performance.ExitSetupError, err: err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !opts.NoHistory {
				openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				rec := history.Open(openCtx, cfg.HistoryRedisURL, cfg.HistoryDatabaseURL)
				cancel()
				defer func() {
					if err := rec.Close(); err != nil {
						logrus.WithError(err).Warn("Failed to close run history")
					}
				}()
				runner.WithHistory(rec)
			}

			outcome, err := runner.Run(ctx)
			if err != nil {
				return &exitError{code: performance.ExitSetupError, err: err}
			}
			if outcome.ExitCode != performance.ExitOK {
				return &exitError{
					code: outcome.ExitCode,
					err:  fmt.Errorf("%d threshold(s) crossed", len(outcome.Report.Failures)),
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Scenarios, "scenario", "s", nil, "scenarios to run (default all)")
	cmd.Flags().StringVar(&opts.SummaryPath, "summary", "", "summary JSON path (default SUMMARY_PATH)")
	cmd.Flags().StringVar(&opts.ResultsBin, "results-bin", "", "write raw results in vegeta's binary format")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "do not save the run to Redis or Postgres")
	cmd.Flags().Float64Var(&opts.Rate, "rate", 0, "run a single constant-rate scenario at this many iterations per second")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 30*time.Second, "duration of the --rate scenario")
	cmd.Flags().IntVar(&opts.VUs, "vus", 10, "pre-allocated VUs of the --rate scenario")
	return cmd
}

func adHocPlan(rate float64, duration time.Duration, vus int) (map[string]performance.ScenarioConfig, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("--duration must be positive")
	}
	if vus <= 0 {
		return nil, fmt.Errorf("--vus must be positive")
	}
	return map[string]performance.ScenarioConfig{
		"adhoc": {
			Executor:        performance.ConstantArrivalRate,
			Exec:            performance.ExecOnce,
			Rate:            rate,
			TimeUnit:        time.Second,
			Duration:        duration,
			PreAllocatedVUs: vus,
			Tags:            metrics.Tags{"scenario": "adhoc"},
		},
	}, nil
}
