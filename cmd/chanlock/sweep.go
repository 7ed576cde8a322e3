package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ceyewan/chanlock/internal/app"
)

func newSweepCommand(flags *rootFlags) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Announce expired locks and warn owners of locks about to expire",
		Long: `Run one sweep pass and print a summary. With --every the pass repeats
until the process is interrupted, which is equivalent to the sweeper inside
"chanlock serve" without the HTTP listener.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if every > 0 {
				return a.Sweeper.Run(ctx, every)
			}
			report, err := a.Sweeper.SweepAll(ctx)
			if report.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "skipped: another replica is sweeping")
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d warned=%d expired=%d warn_failed=%d failed=%d duration=%s\n",
				report.Scanned, report.Warned, report.Expired, report.WarnFailed, report.Failed, report.Duration)
			return err
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the sweep at this interval until interrupted")
	return cmd
}
