// Package logging configures zerolog for the organism tools: a console
// writer on stderr, an optional plain-text file sink, and per-component
// child loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LOG LEVELS
// ═══════════════════════════════════════════════════════════════════════════════

// Level is the minimum severity written.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Zerolog maps the level onto zerolog. Unknown levels fall back to info.
func (l Level) Zerolog() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(string(l)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch Level(strings.ToLower(string(l))) {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════════
// SETUP
// ═══════════════════════════════════════════════════════════════════════════════

// Config configures the global logger.
type Config struct {
	Level    Level  `mapstructure:"level" yaml:"level"`
	FilePath string `mapstructure:"file" yaml:"file"`
	NoColor  bool   `mapstructure:"no_color" yaml:"no_color"`
}

// DefaultConfig returns info-level colored console logging.
func DefaultConfig() Config {
	return Config{Level: LevelInfo}
}

// Setup builds the logger described by cfg, installs it as the global
// zerolog logger and returns it with a closer for the file sink.
func Setup(cfg Config) (zerolog.Logger, func() error, error) {
	return SetupWriter(os.Stderr, cfg)
}

// SetupWriter is Setup with an explicit console destination.
func SetupWriter(console io.Writer, cfg Config) (zerolog.Logger, func() error, error) {
	closer := func() error { return nil }
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		NoColor:    cfg.NoColor,
		TimeFormat: time.Kitchen,
	}}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339})
		closer = f.Close
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(cfg.Level.Zerolog()).
		With().Timestamp().Logger()

	zerolog.SetGlobalLevel(cfg.Level.Zerolog())
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger, closer, nil
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
