package main

import (
	"fmt"

	"history-calendar-loadtest/test/performance"

	"github.com/spf13/cobra"
)

func newListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scenarios of the default plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			opts := performance.DefaultOptions(string(cfg.Version()))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Scenarios:")
			for _, name := range performance.ScenarioNames(opts.Scenarios) {
				fmt.Fprintf(out, "  %s\n", performance.DescribeScenario(name, opts.Scenarios[name]))
			}
			fmt.Fprintf(out, "\nPlanned duration: %s\n", performance.PlanDuration(opts.Scenarios))

			fmt.Fprintln(out, "\nThresholds:")
			for _, metric := range opts.Thresholds.Metrics() {
				for _, expr := range opts.Thresholds[metric] {
					fmt.Fprintf(out, "  %-16s %s\n", metric, expr)
				}
			}
			return nil
		},
	}
}
