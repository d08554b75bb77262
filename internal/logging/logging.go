// Package logging builds the structured run logger: stderr plus a timestamped log file per run.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Options selects level, format, and the directory for the run log file.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Dir    string // empty disables the file sink
	Stderr io.Writer
	Now    func() time.Time
}

// Setup returns a logger writing to stderr and, when Dir is set, to
// Dir/evaluation_YYYYMMDD_HHMMSS.log. The returned close func flushes the file.
func Setup(opts Options) (*slog.Logger, string, func() error, error) {
	out := opts.Stderr
	if out == nil {
		out = os.Stderr
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	closeFn := func() error { return nil }
	var path string
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, "", nil, fmt.Errorf("failed to create logs directory %s: %w", opts.Dir, err)
		}
		path = filepath.Join(opts.Dir, fmt.Sprintf("evaluation_%s.log", now().Format("20060102_150405")))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, "", nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		out = io.MultiWriter(out, f)
		closeFn = f.Close
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))

	var handler slog.Handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "auto-evaluator"), path, closeFn, nil
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Components use it when given a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
