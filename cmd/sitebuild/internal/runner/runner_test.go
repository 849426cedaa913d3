package runner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/runner"
)

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func newJob(t *testing.T) runner.Job {
	t.Helper()
	dir := t.TempDir()
	job := runner.Job{Batch: 1, InDir: filepath.Join(dir, "in"), OutDir: filepath.Join(dir, "out")}
	for _, d := range []string{job.InDir, job.OutDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return job
}

func TestFindTool_SiblingBinary(t *testing.T) {
	tmpDir := t.TempDir()

	sitebuildPath := filepath.Join(tmpDir, "sitebuild")
	toolPath := filepath.Join(tmpDir, runner.DefaultTool)

	if err := os.WriteFile(sitebuildPath, []byte("fake"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(toolPath, []byte("fake"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := runner.New("", nil, runner.WithExecutablePath(sitebuildPath))
	got, err := r.FindTool()
	if err != nil {
		t.Fatalf("FindTool() error = %v", err)
	}
	if got != toolPath {
		t.Errorf("FindTool() = %q, want %q", got, toolPath)
	}
}

func TestFindTool_NotFound(t *testing.T) {
	tmpDir := t.TempDir()
	sitebuildPath := filepath.Join(tmpDir, "sitebuild")

	if err := os.WriteFile(sitebuildPath, []byte("fake"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := runner.New("sitebuild-no-such-tool", nil, runner.WithExecutablePath(sitebuildPath))
	_, err := r.FindTool()
	if !errors.Is(err, runner.ErrToolNotFound) {
		t.Errorf("FindTool() error = %v, want ErrToolNotFound", err)
	}
}

func TestFindTool_ExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	toolPath := filepath.Join(tmpDir, "derive.sh")
	writeScript(t, toolPath, "exit 0")

	got, err := runner.New(toolPath, nil).FindTool()
	if err != nil {
		t.Fatalf("FindTool() error = %v", err)
	}
	if got != toolPath {
		t.Errorf("FindTool() = %q, want %q", got, toolPath)
	}

	_, err = runner.New(filepath.Join(tmpDir, "missing.sh"), nil).FindTool()
	if !errors.Is(err, runner.ErrToolNotFound) {
		t.Errorf("FindTool() error = %v, want ErrToolNotFound", err)
	}
}

func TestArgs(t *testing.T) {
	job := runner.Job{InDir: "/w/in", OutDir: "/w/out"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"appended", []string{"--quality", "80"}, []string{"--quality", "80", "/w/in", "/w/out"}},
		{"placeholders", []string{"-i", "{in}", "--out={out}"}, []string{"-i", "/w/in", "--out=/w/out"}},
		{"none", nil, []string{"/w/in", "/w/out"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runner.New("tool", tt.args).Args(job)
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("Args() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProcess_Success(t *testing.T) {
	toolPath := filepath.Join(t.TempDir(), "derive.sh")
	writeScript(t, toolPath, `for f in "$1"/*.jpg; do cp "$f" "$2/$(basename "$f" .jpg).webp"; done`)

	job := newJob(t)
	if err := os.WriteFile(filepath.Join(job.InDir, "a.jpg"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runner.New(toolPath, nil).Process(context.Background(), job); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(job.OutDir, "a.webp"))
	if err != nil {
		t.Fatalf("expected output: %v", err)
	}
	if string(data) != "a" {
		t.Errorf("output = %q, want %q", data, "a")
	}
}

func TestProcess_Environment(t *testing.T) {
	toolPath := filepath.Join(t.TempDir(), "env.sh")
	writeScript(t, toolPath, `echo "$SITEBUILD_BATCH $QUALITY" > "$SITEBUILD_OUT/env.txt"`)

	job := newJob(t)
	job.Batch = 7
	r := runner.New(toolPath, nil, runner.WithEnv("QUALITY=80"))
	if err := r.Process(context.Background(), job); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(job.OutDir, "env.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "7 80" {
		t.Errorf("env.txt = %q, want %q", data, "7 80")
	}
}

func TestProcess_Failure(t *testing.T) {
	toolPath := filepath.Join(t.TempDir(), "fail.sh")
	writeScript(t, toolPath, `echo "convert: corrupt image" >&2; exit 3`)

	err := runner.New(toolPath, nil).Process(context.Background(), newJob(t))
	var toolErr *runner.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("Process() error = %v, want *ToolError", err)
	}
	if toolErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", toolErr.ExitCode)
	}
	if !strings.Contains(toolErr.Error(), "corrupt image") {
		t.Errorf("Error() = %q, want tool output", toolErr.Error())
	}
}

func TestProcessorFunc(t *testing.T) {
	var got runner.Job
	var p runner.Processor = runner.ProcessorFunc(func(_ context.Context, job runner.Job) error {
		got = job
		return nil
	})
	if err := p.Process(context.Background(), runner.Job{Batch: 4}); err != nil {
		t.Fatal(err)
	}
	if got.Batch != 4 {
		t.Errorf("Batch = %d, want 4", got.Batch)
	}
}
