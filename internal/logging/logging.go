// Package logging builds the slog loggers used across regioncache.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options configures the logger built by New.
type Options struct {
	// Verbose enables debug level (config fallbacks, suppressed echoes).
	Verbose bool
	// Writer receives log output; os.Stderr when nil.
	Writer io.Writer
	// JSON switches from the text handler to the JSON handler.
	JSON bool
}

// New constructs a slog.Logger with regioncache defaults.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
