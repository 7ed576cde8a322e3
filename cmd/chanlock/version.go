package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ceyewan/chanlock/config"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the chanlock version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", config.AppName, version)
			return err
		},
	}
}
