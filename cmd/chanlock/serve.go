package main

import (
	"github.com/spf13/cobra"

	"github.com/ceyewan/chanlock/clog"
	"github.com/ceyewan/chanlock/internal/app"
)

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve slash commands and run the expiry sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := flags.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.WatchLogLevel(ctx, loader); err != nil {
				a.Logger.Warn("log level hot reload disabled", clog.Error(err))
			}
			a.Logger.Info("chanlock starting", clog.String("version", version), clog.String("addr", cfg.HTTP.Addr))
			return a.Run(ctx)
		},
	}
}
