// Package logger provides structured logging for fleetcrawl using zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging surface handed to every component.
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) Logger
	WithFields(fields map[string]any) Logger
}

// Config selects level, destination and encoding.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Debug  bool   `json:"debug" yaml:"debug"`
	Output string `json:"output" yaml:"output"` // stdout or stderr
	Format string `json:"format" yaml:"format"` // json or console
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Output: "stderr", Format: "json"}
}

// New builds a Logger from cfg.
func New(cfg Config) (Logger, error) {
	var output io.Writer
	switch cfg.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	switch cfg.Format {
	case "", "json":
	case "console":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
	}

	return NewWithWriter(output, level), nil
}

// NewWithWriter logs JSON lines at level to w.
func NewWithWriter(w io.Writer, level zerolog.Level) Logger {
	return &zlog{z: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// NewTestLogger creates a logger that discards all output.
func NewTestLogger() Logger {
	return &zlog{z: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}

type zlog struct {
	z zerolog.Logger
}

func (l *zlog) Debug() *zerolog.Event { return l.z.Debug() }
func (l *zlog) Info() *zerolog.Event  { return l.z.Info() }
func (l *zlog) Warn() *zerolog.Event  { return l.z.Warn() }
func (l *zlog) Error() *zerolog.Event { return l.z.Error() }
func (l *zlog) With() zerolog.Context { return l.z.With() }

func (l *zlog) WithComponent(component string) Logger {
	return &zlog{z: l.z.With().Str("component", component).Logger()}
}

func (l *zlog) WithFields(fields map[string]any) Logger {
	return &zlog{z: l.z.With().Fields(fields).Logger()}
}
