package log

import (
	"io"
	"log/slog"
	"os"
)

// HandlerOptions configures NewHandler.
type HandlerOptions struct {
	Level     slog.Leveler
	Format    string // "text" (default) or "json"
	Output    io.Writer
	AddSource bool
}

// NewHandler returns a text or JSON handler that prints custom level names.
// Output defaults to stderr; stdout carries command results.
func NewHandler(opts HandlerOptions) slog.Handler {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey {
				return a
			}
			if l, ok := a.Value.Any().(slog.Level); ok {
				a.Value = slog.StringValue(LevelName(l))
			}
			return a
		},
	}
	if opts.Format == "json" {
		return slog.NewJSONHandler(out, ho)
	}
	return slog.NewTextHandler(out, ho)
}
