// Package logging builds the slog logger used by every driftwatch command.
//
// Logs go to stderr by default so stdout stays reserved for the console
// report. When a file path is configured, output is rotated by lumberjack.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 3
	defaultMaxAgeDays = 14
)

// Config controls handler format, level and destination.
type Config struct {
	Level  string
	Format string
	// File enables rotated file output when non-empty.
	File string
}

// New returns a logger for cfg. An unusable log file falls back to stderr
// with a warning written directly to stderr.
func New(cfg Config) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		if fw, err := newFileWriter(cfg.File); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "WARNING: cannot log to %q: %v, falling back to stderr\n", cfg.File, err)
		} else {
			w = fw
		}
	}
	return NewWithWriter(cfg, w)
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a case-insensitive level name to a slog.Level. Unknown
// values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newFileWriter(path string) (io.Writer, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAgeDays,
		Compress:   true,
	}, nil
}
