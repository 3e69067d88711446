package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"history-calendar-loadtest/internal/history"

	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the configured run history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			rec := history.Open(ctx, cfg.HistoryRedisURL, cfg.HistoryDatabaseURL)
			defer rec.Close()
			if !rec.Enabled() {
				return errors.New("no run history configured (set HISTORY_REDIS_URL or HISTORY_DATABASE_URL)")
			}

			sink := rec.Sinks()[0]
			runs, err := sink.Recent(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "STARTED\tSTATUS\tVERSION\tREQUESTS\tFAIL\tP95 MS\tSCENARIOS\n")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f%%\t%.0f\t%s\n",
					run.StartedAt.Local().Format(time.DateTime),
					run.Status,
					run.AppVersion,
					run.Requests,
					run.FailRate*100,
					run.P95LatencyMs,
					run.Scenarios,
				)
			}
			fmt.Fprintf(w, "(%d runs from %s)\n", len(runs), sink.Name())
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}
