package main

import (
	"github.com/spf13/cobra"

	"github.com/ceyewan/chanlock/config"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

type rootFlags struct {
	configPaths []string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "chanlock",
		Short:         "chanlock coordinates exclusive use of chat channels through slash commands",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringSliceVar(&flags.configPaths, "config",
		[]string{".", "./config", "/etc/chanlock"}, "directories searched for chanlock.yaml")

	cmd.AddCommand(
		newServeCommand(flags),
		newSweepCommand(flags),
		newTokenCommand(flags),
		newVersionCommand(),
	)
	return cmd
}

// load 读取配置，返回的 Loader 可用于监听配置变化
func (f *rootFlags) load(cmd *cobra.Command) (*config.AppConfig, config.Loader, error) {
	loader, err := config.NewAppLoader(f.configPaths)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadApp(cmd.Context(), loader)
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}
