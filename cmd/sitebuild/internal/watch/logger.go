package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/build"
	"github.com/albertocavalcante/sitebuild/internal/metrics"
)

// ChangeType is the kind of filesystem change seen for an asset.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// Logger prints watch session events as text lines or JSON objects.
type Logger struct {
	writer  io.Writer
	isTTY   bool
	verbose bool
	noColor bool
	jsonOut bool

	statsMu sync.Mutex
	stats   Stats
}

// Stats counts what happened during a watch session.
type Stats struct {
	BuildCount int
	ErrorCount int
	StartTime  time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a logger. Color is only used when writing to a terminal.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Logger{
		writer:  writer,
		isTTY:   isTTY,
		verbose: cfg.Verbose,
		noColor: cfg.NoColor,
		jsonOut: cfg.JSON,
		stats:   Stats{StartTime: time.Now()},
	}
}

// Ready announces that the watcher is running.
func (l *Logger) Ready(dirs, sources []string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":   "ready",
			"dirs":    dirs,
			"sources": sources,
		})
		return
	}

	l.printf("sitebuild: watching %d directories\n", len(dirs))
	if len(sources) > 0 {
		l.printf("sitebuild: sources: %s\n", strings.Join(sources, ", "))
	}
	l.println("sitebuild: ready")
	l.println()
}

// FileChanged logs an asset change. Text output only shows it when verbose.
func (l *Logger) FileChanged(path string, change ChangeType) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "file_changed",
			"path":   path,
			"change": string(change),
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}

	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// Rebuilding logs that a build for the given sources is starting.
func (l *Logger) Rebuilding(sources []string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":   "rebuilding",
			"sources": sources,
			"time":    time.Now().Format(time.RFC3339),
		})
		return
	}

	switch len(sources) {
	case 0:
		l.printf("[%s] building...\n", l.timestamp())
	case 1:
		l.printf("[%s] rebuilding %s...\n", l.timestamp(), sources[0])
	default:
		l.printf("[%s] rebuilding %d sources...\n", l.timestamp(), len(sources))
	}
}

// Rebuilt logs a finished build.
func (l *Logger) Rebuilt(s build.Summary) {
	l.statsMu.Lock()
	l.stats.BuildCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":   "rebuilt",
			"summary": s,
			"time":    time.Now().Format(time.RFC3339),
		})
		return
	}

	mark := l.colorize("✓", ChangeAdded)
	if s.Outcome == metrics.OutcomePartial {
		mark = l.colorize("!", ChangeModified)
	}
	l.printf("[%s] %s %d processed, %d failed, %d removed (%s)\n",
		l.timestamp(), mark, s.Processed, s.Failed, s.Removed, s.Outcome)
}

// Error logs a failed build or watch error.
func (l *Logger) Error(err error) {
	l.statsMu.Lock()
	l.stats.ErrorCount++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "error",
			"error": err.Error(),
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	xmark := l.colorize("✗", ChangeDeleted)
	l.printf("[%s] %s error: %v\n", l.timestamp(), xmark, err)
}

// Shutdown logs the end of the session with its statistics.
func (l *Logger) Shutdown() {
	stats := l.Stats()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "shutdown",
			"builds":   stats.BuildCount,
			"errors":   stats.ErrorCount,
			"duration": time.Since(stats.StartTime).String(),
		})
		return
	}

	l.println()
	l.printf("sitebuild: shutting down (%d builds, %d errors)\n", stats.BuildCount, stats.ErrorCount)
}

// Stats returns the session statistics.
func (l *Logger) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

func (l *Logger) timestamp() string {
	return time.Now().Format("15:04:05")
}

func (l *Logger) colorize(s string, change ChangeType) string {
	if l.noColor || !l.isTTY {
		return s
	}

	var color string
	switch change {
	case ChangeAdded:
		color = "\033[32m"
	case ChangeModified:
		color = "\033[33m"
	case ChangeDeleted:
		color = "\033[31m"
	default:
		return s
	}
	return color + s + "\033[0m"
}

func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// Output errors are ignored; the log is informational.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
