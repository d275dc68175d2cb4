// Package logging sets up structured logging for a sitelaunch run.
//
// Every run writes to stderr and to a timestamped, append-only run log. Both
// outputs pass through a Redactor so API keys and passwords never reach disk.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Options configures the run logger
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Dir    string // directory for run logs; empty disables the file
	Now    func() time.Time
}

// RunLog is the logger for a single invocation together with its file
type RunLog struct {
	Logger *slog.Logger
	Path   string
	file   *os.File
}

// Close flushes and closes the run log file
func (r *RunLog) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Open creates the run logger. Console output goes to w.
func Open(opts Options, w io.Writer, redactor *Redactor) (*RunLog, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	level := ParseLevel(opts.Level)
	handlers := []slog.Handler{newHandler(w, opts.Format, level, redactor)}

	run := &RunLog{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0700); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		name := fmt.Sprintf("sitelaunch-%s.log", now().Format("20060102_150405"))
		path := filepath.Join(opts.Dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("opening run log: %w", err)
		}
		run.file = f
		run.Path = path
		// The file always records text lines so every event carries a level= tag.
		handlers = append(handlers, newHandler(f, "text", slog.LevelDebug, redactor))
	}

	run.Logger = slog.New(fanout(handlers))
	return run, nil
}

func newHandler(w io.Writer, format string, level slog.Level, redactor *Redactor) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr(redactor),
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func redactAttr(redactor *Redactor) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		switch a.Value.Kind() {
		case slog.KindString:
			return slog.String(a.Key, redactor.Redact(a.Value.String()))
		case slog.KindAny:
			if err, ok := a.Value.Any().(error); ok {
				return slog.String(a.Key, redactor.Redact(err.Error()))
			}
			if s, ok := a.Value.Any().(fmt.Stringer); ok {
				return slog.String(a.Key, redactor.Redact(s.String()))
			}
		}
		return a
	}
}

// ParseLevel maps a config string to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fanoutHandler sends each record to every handler that accepts its level
type fanoutHandler []slog.Handler

func fanout(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanoutHandler(handlers)
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
