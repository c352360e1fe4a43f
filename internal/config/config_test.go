package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  addr: "127.0.0.1:9000"
discovery:
  mode: static
  static_url: "http://prometheus.local:9090"
polling:
  interval: 15s
widgets:
  - heading: CPU Usage
    query: 'sum(rate(container_cpu_usage_seconds_total[5m]))'
    units: numeric
    limit: 4
  - name: memory
    heading: Memory
    query: 'sum(container_memory_working_set_bytes)'
    units: binaryBytes
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "static", cfg.Discovery.Mode)
	assert.Equal(t, "http://prometheus.local:9090", cfg.Discovery.StaticURL)
	assert.Equal(t, "15s", cfg.Polling.Interval)
	// values absent from the file keep their defaults
	assert.Equal(t, "300ms", cfg.Polling.RetryDelay)
	assert.Equal(t, "prometheus", cfg.Discovery.ServiceName)

	require.Len(t, cfg.Widgets, 2)
	assert.Equal(t, "cpu-usage", cfg.Widgets[0].Slug())
	require.NotNil(t, cfg.Widgets[0].Limit)
	assert.Equal(t, 4.0, *cfg.Widgets[0].Limit)
	assert.Equal(t, "memory", cfg.Widgets[1].Slug())
	assert.Nil(t, cfg.Widgets[1].Limit)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv("SPARKWATCH_PROMETHEUS_URL", "http://override:9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "7070")

	cfg, err := LoadFromFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://override:9090", cfg.Discovery.StaticURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0:7070", cfg.Server.Addr)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty address",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: "server address",
		},
		{
			name:    "unknown discovery mode",
			mutate:  func(c *Config) { c.Discovery.Mode = "dns" },
			wantErr: "discovery mode",
		},
		{
			name:    "bad kubernetes mode",
			mutate:  func(c *Config) { c.Kubernetes.Mode = "remote" },
			wantErr: "kubernetes mode",
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.Polling.Interval = "soon" },
			wantErr: "polling.interval",
		},
		{
			name:    "non-positive duration",
			mutate:  func(c *Config) { c.Polling.Step = "0s" },
			wantErr: "polling.step must be positive",
		},
		{
			name: "duplicate widgets",
			mutate: func(c *Config) {
				c.Widgets = []WidgetConfig{
					{Heading: "CPU", Query: "up"},
					{Name: "cpu", Query: "up"},
				}
			},
			wantErr: "duplicate widget",
		},
		{
			name: "widget without query",
			mutate: func(c *Config) {
				c.Widgets = []WidgetConfig{{Heading: "CPU"}}
			},
			wantErr: "has no query",
		},
		{
			name: "pinned widget needs no query",
			mutate: func(c *Config) {
				c.Widgets = []WidgetConfig{{Heading: "CPU", TestState: "nodata"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDurations(t *testing.T) {
	d, err := Default().ParseDurations()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, d.PollInterval)
	assert.Equal(t, 300*time.Millisecond, d.RetryDelay)
	assert.Equal(t, time.Hour, d.Window)
	assert.Equal(t, 30*time.Second, d.Step)
	assert.Equal(t, 10*time.Second, d.RequestTimeout)
	assert.Equal(t, 15*time.Second, d.CacheTTL)
}
