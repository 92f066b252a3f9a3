package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/randalmurphal/taskflow/pkg/taskflow/config"
)

// NewFileLogger returns a logger writing text records to path.
// With override the file is truncated, otherwise records are appended.
// Close the returned io.Closer when the logger is no longer used.
func NewFileLogger(path string, override bool, level slog.Level) (*slog.Logger, io.Closer, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if override {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open debug log %s: %w", path, err)
	}

	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(handler), f, nil
}

// LoggerFromConfig builds a logger from a "log" config section.
//
// Keys:
//   - level: debug, info, warn or error (default info)
//   - format: text or json (default text), used when no file is set
//   - file: path of a debug file; empty logs to stderr
//   - override: truncate the file instead of appending (default false)
func LoggerFromConfig(cfg config.Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.String("level", "info"))
	if err != nil {
		return nil, nil, err
	}

	if path := cfg.String("file", ""); path != "" {
		return NewFileLogger(path, cfg.Bool("override", false), level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format := strings.ToLower(cfg.String("format", "text")); format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(handler), nopCloser{}, nil
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level %q: %w", name, err)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
