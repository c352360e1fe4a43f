package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aaronlmathis/sparkwatch/internal/promclient"
	"github.com/aaronlmathis/sparkwatch/internal/sparkline"
	"github.com/aaronlmathis/sparkwatch/internal/units"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var queryCmd = &cobra.Command{
	Use:   "query <widget>",
	Short: "Fetch one widget once and print its state",
	Long: `Run a single fetch for the named widget and print the resulting state
and statistics. Discovery and the range query behave exactly as in serve.

Example:
  sparkwatch query -c config.yaml memory`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	c, err := buildComponents(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	var widget *sparkline.Config
	for _, w := range widgetConfigs(c.cfg, c.durations) {
		if w.Name == args[0] {
			w := w
			widget = &w
			break
		}
	}
	if widget == nil {
		return fmt.Errorf("widget %q is not configured", args[0])
	}
	if widget.Query == "" {
		return fmt.Errorf("widget %q has no query", widget.Name)
	}

	event, samples := fetchOnce(cmd.Context(), c, *widget)
	printOutcome(cmd.OutOrStdout(), *widget, event, samples)
	return nil
}

// fetchOnce runs discovery and the range query for one widget
func fetchOnce(ctx context.Context, c *components, w sparkline.Config) (sparkline.Event, []sparkline.Sample) {
	baseURL, err := c.resolver.Resolve(ctx, w.ServiceName)
	if err != nil {
		c.logger.Warn("Service discovery failed", zap.String("service", w.ServiceName), zap.Error(err))
		return sparkline.EventUnavailable, nil
	}

	end := time.Now()
	result := c.client.QueryRange(ctx, baseURL, w.Query, end.Add(-w.Window), end, w.Step)
	if f, ok := result.(promclient.Failure); ok {
		c.logger.Warn("Range query failed",
			zap.String("errorType", f.ErrorType),
			zap.String("error", f.Error))
	}
	return sparkline.Classify(result)
}

func printOutcome(out io.Writer, w sparkline.Config, event sparkline.Event, samples []sparkline.Sample) {
	state, _ := sparkline.Transition(sparkline.Loading, event)
	fmt.Fprintf(out, "%s: %s\n", w.Heading, state)

	stats, ok := sparkline.ComputeStats(samples, w.Limit)
	if !ok {
		return
	}

	kind := units.ParseKind(w.Units)
	fmt.Fprintf(out, "  samples: %d\n", len(samples))
	fmt.Fprintf(out, "  limit:   %s\n", units.HumanizePtr(stats.Limit, kind))
	fmt.Fprintf(out, "  median:  %s\n", units.Humanize(stats.Median, kind))
	fmt.Fprintf(out, "  p95:     %s\n", units.Humanize(stats.P95, kind))
	fmt.Fprintf(out, "  latest:  %s\n", units.Humanize(stats.Latest, kind))
}
