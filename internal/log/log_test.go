package log

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		expected  slog.Level
	}{
		{0, slog.LevelError},
		{-1, slog.LevelError},
		{1, slog.LevelWarn},
		{2, slog.LevelInfo},
		{3, slog.LevelDebug},
		{4, LevelTrace},
		{5, LevelTrace}, // anything > 4 maps to trace
	}

	for _, tt := range tests {
		got := VerbosityToLevel(tt.verbosity)
		if got != tt.expected {
			t.Errorf("VerbosityToLevel(%d) = %v, want %v", tt.verbosity, got, tt.expected)
		}
	}
}

func TestLevelToVerbosity(t *testing.T) {
	tests := []struct {
		level    slog.Level
		expected int
	}{
		{slog.LevelError, VerbosityError},
		{slog.LevelWarn, VerbosityWarn},
		{slog.LevelInfo, VerbosityInfo},
		{slog.LevelDebug, VerbosityDebug},
		{LevelTrace, VerbosityTrace},
	}

	for _, tt := range tests {
		got := LevelToVerbosity(tt.level)
		if got != tt.expected {
			t.Errorf("LevelToVerbosity(%v) = %d, want %d", tt.level, got, tt.expected)
		}
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		level    slog.Level
		expected string
	}{
		{LevelTrace, "TRACE"},
		{slog.LevelDebug, "DEBUG"},
		{slog.LevelInfo, "INFO"},
		{slog.LevelWarn, "WARN"},
		{slog.LevelError, "ERROR"},
	}

	for _, tt := range tests {
		got := LevelName(tt.level)
		if got != tt.expected {
			t.Errorf("LevelName(%v) = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestInitWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Init(2, "text")
	if Verbosity() != 2 {
		t.Errorf("Verbosity() = %d, want 2", Verbosity())
	}

	l := Component("incremental")
	l.Info("scanned source", Source("imagery"), Count(3))
	l.Debug("hidden at v=2")

	out := buf.String()
	for _, want := range []string{"component=incremental", "source=imagery", "count=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
	if strings.Contains(out, "hidden at v=2") {
		t.Errorf("debug record should be filtered at v=2, got: %s", out)
	}
}

func TestInitJSONAndTrace(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Init(VerbosityTrace, "json")
	defer Init(VerbosityWarn, "text")

	Component("build").Log(context.Background(), LevelTrace, "committed output", Path("a/b.webp"))
	Warn("static file not found", Path("index.html"))

	out := buf.String()
	for _, want := range []string{`"level":"TRACE"`, `"path":"a/b.webp"`, `"level":"WARN"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestVerbosityFollowsInit(t *testing.T) {
	SetOutput(io.Discard)
	defer SetOutput(nil)

	for _, v := range []int{VerbosityError, VerbosityDebug, VerbosityWarn} {
		Init(v, "text")
		if got := Verbosity(); got != v {
			t.Errorf("after Init(%d) Verbosity() = %d", v, got)
		}
	}
}

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(HandlerOptions{Level: slog.LevelInfo, Format: "json", Output: &buf}))

	l.Info("batch failed", Batch(2), Attempt(1), Asset("banners/a.jpg"), Err(errors.New("exit status 1")))

	out := buf.String()
	for _, want := range []string{`"batch":2`, `"attempt":1`, `"asset":"banners/a.jpg"`, `"error":"exit status 1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestErrNil(t *testing.T) {
	if got := Err(nil); got.Value.String() != "" {
		t.Errorf("Err(nil) = %q, want empty", got.Value.String())
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic and must report disabled.
	l := Discard()
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard logger should be disabled")
	}
	l.Error("dropped")
}

func TestNewHandler_DefaultOutput(t *testing.T) {
	handler := NewHandler(HandlerOptions{
		Level:  slog.LevelInfo,
		Format: "text",
		Output: nil, // should default to stderr
	})

	if handler == nil {
		t.Error("NewHandler should not return nil")
	}
}
