package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a sparkwatch configuration without starting the server.
Environment overrides are applied before validation.

Example:
  sparkwatch validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, d, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Config is valid!")
	fmt.Fprintf(out, "  Discovery:     %s (%s)\n", cfg.Discovery.Mode, cfg.Discovery.ServiceName)
	fmt.Fprintf(out, "  Poll interval: %s\n", d.PollInterval)
	fmt.Fprintf(out, "  Window:        %s every %s\n", d.Window, d.Step)
	fmt.Fprintf(out, "  Widgets:       %d\n", len(cfg.Widgets))
	for _, w := range widgetConfigs(cfg, d) {
		if w.TestState != "" {
			fmt.Fprintf(out, "    - %s (pinned to %s)\n", w.Name, w.TestState)
			continue
		}
		fmt.Fprintf(out, "    - %s\n", w.Name)
	}
	return nil
}
