package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "iotfleet",
	Short: "IoT fleet telemetry simulator and fuel-alert pipeline",
	Long: "iotfleet simulates vehicle telemetry along predefined routes, ingests readings " +
		"from real devices and raises predictive fuel alerts to connected subscribers.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(seedCmd)
}
