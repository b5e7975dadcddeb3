// Package config loads the organism tool configuration from
// ~/.organism/config.yaml with ORGANISM_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/organism/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. ORGANISM_STORE_KIND.
const EnvPrefix = "ORGANISM"

// Config holds the host configuration. Organism definitions live in
// profile documents, not here.
type Config struct {
	Logging    logging.Config   `mapstructure:"logging" yaml:"logging"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Observer   ObserverConfig   `mapstructure:"observer" yaml:"observer"`
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
}

// StoreConfig selects where run traces are persisted.
type StoreConfig struct {
	// Kind is "memory" or "sqlite".
	Kind string `mapstructure:"kind" yaml:"kind"`
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// ObserverConfig controls the WebSocket event stream.
type ObserverConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr          string `mapstructure:"addr" yaml:"addr"`
	ReplayHistory bool   `mapstructure:"replay_history" yaml:"replay_history"`
	HistoryCount  int    `mapstructure:"history_count" yaml:"history_count"`
}

// SimulationConfig holds defaults for scenario runs.
type SimulationConfig struct {
	// TickInterval paces the terminal watcher.
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	// MaxTicks is the longest scenario the CLI will run.
	MaxTicks    int    `mapstructure:"max_ticks" yaml:"max_ticks"`
	ProfilesDir string `mapstructure:"profiles_dir" yaml:"profiles_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: logging.DefaultConfig(),
		Store: StoreConfig{
			Kind: "sqlite",
			Path: "~/.organism/runs.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
		},
		Observer: ObserverConfig{
			Enabled:       false,
			Addr:          ":8765",
			ReplayHistory: true,
			HistoryCount:  100,
		},
		Simulation: SimulationConfig{
			TickInterval: 250 * time.Millisecond,
			MaxTicks:     1000,
			ProfilesDir:  "~/.organism/profiles",
		},
	}
}

// DefaultPath returns ~/.organism/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".organism", "config.yaml"), nil
}

// Load reads the configuration from DefaultPath.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads path, writing the defaults there first when it does
// not exist. Environment variables override file values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	// Example: ORGANISM_STORE_KIND=memory
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Path = expandPath(cfg.Store.Path)
	cfg.Logging.FilePath = expandPath(cfg.Logging.FilePath)
	cfg.Simulation.ProfilesDir = expandPath(cfg.Simulation.ProfilesDir)
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are missing from an older config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logging.level", string(d.Logging.Level))
	v.SetDefault("logging.file", d.Logging.FilePath)
	v.SetDefault("logging.no_color", d.Logging.NoColor)
	v.SetDefault("store.kind", d.Store.Kind)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("observer.enabled", d.Observer.Enabled)
	v.SetDefault("observer.addr", d.Observer.Addr)
	v.SetDefault("observer.replay_history", d.Observer.ReplayHistory)
	v.SetDefault("observer.history_count", d.Observer.HistoryCount)
	v.SetDefault("simulation.tick_interval", d.Simulation.TickInterval)
	v.SetDefault("simulation.max_ticks", d.Simulation.MaxTicks)
	v.SetDefault("simulation.profiles_dir", d.Simulation.ProfilesDir)
}

// SaveToPath writes the configuration as YAML.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// Validate checks the configuration for values the tools cannot use.
func (c *Config) Validate() error {
	if !c.Logging.Level.Valid() {
		return fmt.Errorf("invalid log level '%s', must be one of: trace, debug, info, warn, error", c.Logging.Level)
	}
	switch c.Store.Kind {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("invalid store kind '%s', must be 'memory' or 'sqlite'", c.Store.Kind)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if c.Observer.Enabled && c.Observer.Addr == "" {
		return fmt.Errorf("observer.addr is required when the observer is enabled")
	}
	if c.Observer.HistoryCount < 0 {
		return fmt.Errorf("observer.history_count cannot be negative")
	}
	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be positive")
	}
	if c.Simulation.MaxTicks <= 0 {
		return fmt.Errorf("simulation.max_ticks must be positive")
	}
	return nil
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
