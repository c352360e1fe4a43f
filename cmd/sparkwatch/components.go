package main

import (
	"fmt"

	"github.com/aaronlmathis/sparkwatch/internal/config"
	"github.com/aaronlmathis/sparkwatch/internal/discovery"
	"github.com/aaronlmathis/sparkwatch/internal/k8s/client"
	"github.com/aaronlmathis/sparkwatch/internal/logging"
	"github.com/aaronlmathis/sparkwatch/internal/promclient"
	"github.com/aaronlmathis/sparkwatch/internal/sparkline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// resolverCacheSize bounds the number of distinct service names cached
const resolverCacheSize = 64

// components are the pieces shared by serve and query
type components struct {
	cfg       *config.Config
	durations config.Durations
	logger    *zap.Logger
	resolver  *discovery.CachedResolver
	client    *promclient.Client
}

func (c *components) Close() {
	if c.resolver != nil {
		c.resolver.Close()
	}
	c.logger.Sync()
}

// loadConfig reads the --config file when given and validates the result
func loadConfig(cmd *cobra.Command) (*config.Config, config.Durations, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, config.Durations{}, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, config.Durations{}, fmt.Errorf("invalid configuration: %w", err)
	}

	d, err := cfg.ParseDurations()
	if err != nil {
		return nil, config.Durations{}, err
	}
	return cfg, d, nil
}

func buildComponents(cmd *cobra.Command) (*components, error) {
	cfg, d, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	resolver, err := newResolver(logger, cfg)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	cached, err := discovery.NewCachedResolver(resolver, d.CacheTTL, resolverCacheSize)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to create discovery cache: %w", err)
	}

	return &components{
		cfg:       cfg,
		durations: d,
		logger:    logger,
		resolver:  cached,
		client:    promclient.NewClient(logger, d.RequestTimeout),
	}, nil
}

func newResolver(logger *zap.Logger, cfg *config.Config) (discovery.Resolver, error) {
	if cfg.Discovery.Mode == "static" {
		logger.Info("Using static metrics backend", zap.String("url", cfg.Discovery.StaticURL))
		return discovery.StaticResolver{URL: cfg.Discovery.StaticURL}, nil
	}

	logger.Info("Initializing Kubernetes client", zap.String("mode", cfg.Kubernetes.Mode))
	factory, err := client.NewFactory(logger, client.ClientMode(cfg.Kubernetes.Mode), cfg.Kubernetes.KubeconfigPath)
	if err != nil {
		return nil, err
	}

	// An unreachable API server only makes widgets unavailable
	if err := factory.ValidateConnection(); err != nil {
		logger.Warn("Kubernetes API not reachable", zap.Error(err))
	}

	return discovery.NewKubeResolver(logger, factory.Client(),
		cfg.Discovery.Namespace, cfg.Discovery.PortName, cfg.Discovery.Scheme), nil
}

// widgetConfigs maps configured widgets onto controller configs, filling in
// the global polling settings.
func widgetConfigs(cfg *config.Config, d config.Durations) []sparkline.Config {
	out := make([]sparkline.Config, 0, len(cfg.Widgets))
	for _, w := range cfg.Widgets {
		heading := w.Heading
		if heading == "" {
			heading = w.Slug()
		}
		out = append(out, sparkline.Config{
			Name:        w.Slug(),
			Heading:     heading,
			Query:       w.Query,
			Units:       w.Units,
			Limit:       w.Limit,
			ServiceName: cfg.Discovery.ServiceName,
			Interval:    d.PollInterval,
			RetryDelay:  d.RetryDelay,
			Window:      d.Window,
			Step:        d.Step,
			TestState:   w.TestState,
		})
	}
	return out
}
