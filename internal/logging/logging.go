// Package logging provides opt-in file-based structured logging with
// rotation for the digital memory retrieval core. By default logs go to
// stderr only (human text if a TTY, JSON otherwise); --debug additionally
// writes rotating JSON logs under ~/.digitalmemory/logs/.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config describes how the logger should be constructed.
type Config struct {
	Level         string // debug, info, warn, error
	FilePath      string // empty disables file logging
	MaxSizeMB     int
	MaxFiles      int
	WriteToStderr bool
}

// DefaultConfig returns the non-debug default: stderr only.
func DefaultConfig() Config {
	return Config{Level: "info", WriteToStderr: true}
}

// DebugConfig returns the --debug configuration: rotating file plus stderr.
func DebugConfig() Config {
	return Config{
		Level:         "debug",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// Setup builds a logger from cfg and returns a cleanup function that must
// be called on shutdown to flush and close any open file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var writers []io.Writer
	cleanup := func() {}

	if cfg.FilePath != "" {
		if err := EnsureLogDir(); err != nil {
			return nil, nil, err
		}
		rw, err := NewRotatingWriter(cfg.FilePath, nonZero(cfg.MaxSizeMB, 10), nonZero(cfg.MaxFiles, 5))
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, rw)
		cleanup = func() { _ = rw.Sync(); _ = rw.Close() }
	}

	if cfg.WriteToStderr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = io.MultiWriter(writers...)
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.FilePath == "" && isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), cleanup, nil
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
