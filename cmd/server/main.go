package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Set by -ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "autotrader",
		Short:         "Autonomous trading bot for USDT perpetual futures",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")

	root.AddCommand(
		newServeCmd(&configPath),
		newCycleCmd(&configPath),
		newQuarantineCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				cmd.Println(version)
			},
		},
	)
	return root
}
