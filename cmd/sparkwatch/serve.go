package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaronlmathis/sparkwatch/internal/api"
	"github.com/aaronlmathis/sparkwatch/internal/dashboard"
	"github.com/aaronlmathis/sparkwatch/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start polling widgets and serve the API",
	Long: `Start the sparkwatch server.

The server loads the configuration, starts every widget and serves
the widget API, the WebSocket stream and /metrics until interrupted.

Example:
  sparkwatch serve -c /etc/sparkwatch/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := buildComponents(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	logger := c.logger
	info := version.Get()
	logger.Info("Starting sparkwatch",
		zap.String("version", info.Version),
		zap.String("gitCommit", info.GitCommit),
		zap.String("buildDate", info.BuildDate),
		zap.String("goVersion", info.GoVersion),
		zap.String("addr", c.cfg.Server.Addr),
		zap.Int("widgets", len(c.cfg.Widgets)))

	dash, err := dashboard.New(logger, widgetConfigs(c.cfg, c.durations), c.resolver, c.client)
	if err != nil {
		return fmt.Errorf("failed to create dashboard: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewServer(logger, c.cfg, dash)
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server components: %w", err)
	}
	defer apiServer.Stop()

	server := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", c.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited")
	return nil
}
