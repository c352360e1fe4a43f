// Package main is the entry point for the sparkwatch CLI.
//
// Usage:
//
//	sparkwatch serve -c config.yaml        # Poll widgets and serve the API
//	sparkwatch query -c config.yaml cpu    # Fetch one widget once and print it
//	sparkwatch validate -c config.yaml     # Validate configuration
//	sparkwatch version                     # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/aaronlmathis/sparkwatch/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sparkwatch",
	Short: "Sparkline widgets backed by Prometheus range queries",
	Long: `sparkwatch polls Prometheus range queries for a set of sparkline widgets
and serves their state, samples and summary statistics over HTTP and WebSocket.

Each widget fetches immediately on start and then every polling interval.
Widgets whose backend cannot be discovered stop polling and report
"notavailable"; timed out, empty and broken widgets can be retried.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		os.Exit(1)
	}
}
