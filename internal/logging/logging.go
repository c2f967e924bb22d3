// Package logging builds the process logger on [log/slog] and carries it
// through contexts with [WithLogger] / [FromContext].
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// Options selects the handler of a logger built by [NewWithOptions].
type Options struct {
	// Level is the minimum severity name (debug, info, warn, error).
	Level string
	// Format is "text" for human-readable output; anything else is JSON.
	Format string
	// Writer receives the records. Defaults to os.Stderr.
	Writer io.Writer
}

// New constructs a [*slog.Logger] writing to stderr, configured from
// LOG_LEVEL and LOG_FORMAT. Stdout is left to command output.
func New() *slog.Logger {
	return NewWithOptions(Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
}

// NewWithOptions constructs a [*slog.Logger] from explicit options.
func NewWithOptions(o Options) *slog.Logger {
	w := o.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(o.Level)}

	if strings.EqualFold(o.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the [*slog.Logger] stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ParseLevel converts a level name to a [slog.Level], defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
