package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Polling    PollingConfig    `yaml:"polling"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
	Logging    LoggingConfig    `yaml:"logging"`
	Widgets    []WidgetConfig   `yaml:"widgets"`
}

// ServerConfig represents the server configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// KubernetesConfig represents the Kubernetes configuration
type KubernetesConfig struct {
	Mode           string `yaml:"mode"`
	KubeconfigPath string `yaml:"kubeconfig_path"`
}

// DiscoveryConfig controls how the metrics backend is located.
// Mode "kubernetes" looks the service up through the API server, mode "static"
// uses StaticURL and treats an empty URL as unavailable.
type DiscoveryConfig struct {
	Mode        string `yaml:"mode"`
	ServiceName string `yaml:"service_name"`
	Namespace   string `yaml:"namespace"`
	PortName    string `yaml:"port_name"`
	Scheme      string `yaml:"scheme"`
	StaticURL   string `yaml:"static_url"`
	CacheTTL    string `yaml:"cache_ttl"`
}

// PrometheusConfig represents range-query client configuration
type PrometheusConfig struct {
	Timeout string `yaml:"timeout"`
}

// PollingConfig holds the widget polling cadence
type PollingConfig struct {
	Interval   string `yaml:"interval"`
	RetryDelay string `yaml:"retry_delay"`
	Window     string `yaml:"window"`
	Step       string `yaml:"step"`
}

// RateLimitsConfig represents the rate limits configuration
type RateLimitsConfig struct {
	RetriesPerMinute int `yaml:"retries_per_minute"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// WidgetConfig describes a single sparkline widget
type WidgetConfig struct {
	Name      string   `yaml:"name"`
	Heading   string   `yaml:"heading"`
	Query     string   `yaml:"query"`
	Limit     *float64 `yaml:"limit"`
	Units     string   `yaml:"units"`
	TestState string   `yaml:"test_state"`
}

// Load loads the configuration from environment variables and defaults
func Load() (*Config, error) {
	return loadWithDefaults("")
}

// LoadFromFile loads configuration from a YAML file, with environment variable overrides
func LoadFromFile(configPath string) (*Config, error) {
	return loadWithDefaults(configPath)
}

// Default returns the built-in configuration without consulting the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "0.0.0.0:8080",
		},
		Kubernetes: KubernetesConfig{
			Mode: "kubeconfig",
		},
		Discovery: DiscoveryConfig{
			Mode:        "kubernetes",
			ServiceName: "prometheus",
			Namespace:   "monitoring",
			PortName:    "web",
			Scheme:      "http",
			CacheTTL:    "15s",
		},
		Prometheus: PrometheusConfig{
			Timeout: "10s",
		},
		Polling: PollingConfig{
			Interval:   "30s",
			RetryDelay: "300ms",
			Window:     "1h",
			Step:       "30s",
		},
		RateLimits: RateLimitsConfig{
			RetriesPerMinute: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadWithDefaults loads configuration with defaults, optionally from a file
func loadWithDefaults(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromYAMLFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configPath, err)
		}
	}

	// Environment variables take precedence over file values
	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadFromYAMLFile decodes the file on top of the defaults already in cfg
func loadFromYAMLFile(configPath string, cfg *Config) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Addr = getEnv("SPARKWATCH_SERVER_ADDR", cfg.Server.Addr)
	cfg.Kubernetes.Mode = getEnv("SPARKWATCH_KUBE_MODE", cfg.Kubernetes.Mode)
	cfg.Kubernetes.KubeconfigPath = getEnv("KUBECONFIG", cfg.Kubernetes.KubeconfigPath)

	cfg.Discovery.Mode = getEnv("SPARKWATCH_DISCOVERY_MODE", cfg.Discovery.Mode)
	cfg.Discovery.ServiceName = getEnv("SPARKWATCH_DISCOVERY_SERVICE", cfg.Discovery.ServiceName)
	cfg.Discovery.Namespace = getEnv("SPARKWATCH_DISCOVERY_NAMESPACE", cfg.Discovery.Namespace)
	cfg.Discovery.StaticURL = getEnv("SPARKWATCH_PROMETHEUS_URL", cfg.Discovery.StaticURL)

	cfg.Prometheus.Timeout = getEnv("SPARKWATCH_PROMETHEUS_TIMEOUT", cfg.Prometheus.Timeout)
	cfg.Polling.Interval = getEnv("SPARKWATCH_POLL_INTERVAL", cfg.Polling.Interval)
	cfg.RateLimits.RetriesPerMinute = getEnvInt("SPARKWATCH_RETRIES_PER_MINUTE", cfg.RateLimits.RetriesPerMinute)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	if port := getEnv("PORT", ""); port != "" {
		cfg.Server.Addr = "0.0.0.0:" + port
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	switch c.Discovery.Mode {
	case "kubernetes":
		if c.Kubernetes.Mode != "incluster" && c.Kubernetes.Mode != "kubeconfig" {
			return fmt.Errorf("kubernetes mode must be 'incluster' or 'kubeconfig'")
		}
		if c.Discovery.ServiceName == "" {
			return fmt.Errorf("discovery service name is required in kubernetes mode")
		}
	case "static":
	default:
		return fmt.Errorf("discovery mode must be 'kubernetes' or 'static'")
	}

	durations := map[string]string{
		"discovery.cache_ttl": c.Discovery.CacheTTL,
		"prometheus.timeout":  c.Prometheus.Timeout,
		"polling.interval":    c.Polling.Interval,
		"polling.retry_delay": c.Polling.RetryDelay,
		"polling.window":      c.Polling.Window,
		"polling.step":        c.Polling.Step,
	}
	for field, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", field)
		}
	}

	seen := make(map[string]bool, len(c.Widgets))
	for i, w := range c.Widgets {
		name := w.Slug()
		if name == "" {
			return fmt.Errorf("widget %d needs a name or heading", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate widget name %q", name)
		}
		seen[name] = true
		if w.Query == "" && w.TestState == "" {
			return fmt.Errorf("widget %q has no query", name)
		}
	}

	return nil
}

// Slug returns the widget's routing name: the explicit name, or the heading
// lowercased with spaces replaced by dashes.
func (w WidgetConfig) Slug() string {
	if w.Name != "" {
		return w.Name
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(w.Heading)), " ", "-")
}

// Durations is the parsed form of the duration strings in the config.
type Durations struct {
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	PollInterval   time.Duration
	RetryDelay     time.Duration
	Window         time.Duration
	Step           time.Duration
}

// ParseDurations parses every duration field. Call after Validate.
func (c *Config) ParseDurations() (Durations, error) {
	var d Durations
	fields := []struct {
		dst   *time.Duration
		value string
	}{
		{&d.CacheTTL, c.Discovery.CacheTTL},
		{&d.RequestTimeout, c.Prometheus.Timeout},
		{&d.PollInterval, c.Polling.Interval},
		{&d.RetryDelay, c.Polling.RetryDelay},
		{&d.Window, c.Polling.Window},
		{&d.Step, c.Polling.Step},
	}
	for _, f := range fields {
		parsed, err := time.ParseDuration(f.value)
		if err != nil {
			return Durations{}, fmt.Errorf("invalid duration %q: %w", f.value, err)
		}
		*f.dst = parsed
	}
	return d, nil
}
