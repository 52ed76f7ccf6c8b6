// ABOUTME: Structured logging built on zerolog
// ABOUTME: Writes to a log file by default so the board keeps the terminal; console output in development

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls logger output. Env "development" writes human-readable
// output to stderr; anything else writes JSON to File, or stderr when File
// is empty.
type Config struct {
	Env   string
	Level string
	File  string
}

// Logger wraps a zerolog.Logger and the file it may own.
type Logger struct {
	zl    zerolog.Logger
	close func() error
}

func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)
	closer := func() error { return nil }

	var w io.Writer = os.Stderr
	switch {
	case cfg.Env == "development":
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	case cfg.File != "":
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closer = f.Close
	}

	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	log.Logger = zl
	return &Logger{zl: zl, close: closer}, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), close: func() error { return nil }}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Component returns a sub-logger tagged with name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zl.With().Str("component", name).Logger()
}

// Zerolog exposes the underlying logger for components that take it by value.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Close() error {
	return l.close()
}
