// Package log provides leveled structured logging for sitebuild on top of
// log/slog. Verbosity follows the klog convention: -v=0 logs errors only,
// -v=4 logs everything down to trace.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	current atomic.Pointer[slog.Logger]
	level   = new(slog.LevelVar)
	sink    atomic.Pointer[io.Writer]
)

func init() {
	level.Set(slog.LevelWarn)
	current.Store(slog.New(NewHandler(HandlerOptions{Level: level})))
}

// Init installs the process logger at verbosity v. format is "text" or "json".
func Init(v int, format string) {
	level.Set(VerbosityToLevel(v))

	var out io.Writer = os.Stderr
	if w := sink.Load(); w != nil {
		out = *w
	}
	l := slog.New(NewHandler(HandlerOptions{Level: level, Format: format, Output: out}))
	current.Store(l)
	slog.SetDefault(l)
}

// SetOutput redirects subsequent Init calls to w. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		sink.Store(nil)
		return
	}
	sink.Store(&w)
}

// Verbosity returns the active verbosity level.
func Verbosity() int {
	return LevelToVerbosity(level.Level())
}

// Warn logs on the process logger.
func Warn(msg string, args ...any) {
	current.Load().Warn(msg, args...)
}

// Component returns a logger tagged with a component name. Loggers obtained
// before Init keep writing to the previous handler.
func Component(name string) *slog.Logger {
	return current.Load().With(KeyComponent, name)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
