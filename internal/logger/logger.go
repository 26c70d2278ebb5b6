// Package logger builds the zerolog logger shared by the CLI and engine.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects how log lines are written to stderr.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config controls logger construction.
type Config struct {
	Level      string
	Format     Format
	FilePath   string // optional rotating log file
	MaxSizeMB  int
	MaxBackups int
	NoColor    bool
	Stderr     io.Writer // defaults to os.Stderr
}

// New returns a logger writing to stderr and, when FilePath is set, to a
// rotating file as JSON.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.WarnLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	var console io.Writer
	switch cfg.Format {
	case FormatJSON:
		console = stderr
	case FormatConsole, "":
		console = zerolog.ConsoleWriter{Out: stderr, NoColor: cfg.NoColor, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (want console|json)", cfg.Format)
	}

	writers := []io.Writer{console}
	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
		})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}

// Component derives a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
