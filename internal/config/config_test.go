package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/organism/internal/logging"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, logging.LevelInfo, cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.TickInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromPath_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".organism", "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.TickInterval)
	assert.Equal(t, 100, cfg.Observer.HistoryCount)
}

func TestLoadFromPath_RoundTripsSavedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Store = StoreConfig{Kind: "memory"}
	cfg.Metrics = MetricsConfig{Enabled: true, Addr: ":9999"}
	cfg.Simulation.TickInterval = time.Second
	require.NoError(t, cfg.SaveToPath(path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", loaded.Store.Kind)
	assert.True(t, loaded.Metrics.Enabled)
	assert.Equal(t, ":9999", loaded.Metrics.Addr)
	assert.Equal(t, time.Second, loaded.Simulation.TickInterval)
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("ORGANISM_STORE_KIND", "memory")
	t.Setenv("ORGANISM_LOGGING_LEVEL", "debug")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
}

func TestLoadFromPath_MissingKeysUseDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  kind: memory\n"), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, 1000, cfg.Simulation.MaxTicks)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad store", func(c *Config) { c.Store.Kind = "postgres" }, "invalid store kind"},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"metrics without addr", func(c *Config) { c.Metrics = MetricsConfig{Enabled: true} }, "metrics.addr"},
		{"zero interval", func(c *Config) { c.Simulation.TickInterval = 0 }, "tick_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
