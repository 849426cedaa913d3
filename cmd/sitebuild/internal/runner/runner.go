// Package runner finds and executes the external image processing tool.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultTool is the tool looked up when no command is configured.
const DefaultTool = "sitebuild-derive"

// ErrToolNotFound is returned when the processing tool cannot be located.
var ErrToolNotFound = errors.New("processing tool not found")

// Job is one batch handed to the tool: a directory of staged inputs and an
// empty directory for its outputs.
type Job struct {
	Batch  int
	InDir  string
	OutDir string
}

// Processor transforms the inputs of a job into outputs.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, job Job) error

// Process calls f(ctx, job).
func (f ProcessorFunc) Process(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// ToolError reports a non-zero exit of the tool.
type ToolError struct {
	Path     string
	ExitCode int
	Output   string // tail of combined stdout/stderr
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", filepath.Base(e.Path), e.ExitCode)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// maxOutputTail bounds the tool output kept in a ToolError.
const maxOutputTail = 2048

// Runner handles finding and executing the processing tool.
type Runner struct {
	command        string
	args           []string
	executablePath string // Path to sitebuild executable (for finding sibling)
	env            []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutablePath sets the path to the sitebuild executable.
// Used primarily for testing.
func WithExecutablePath(path string) Option {
	return func(r *Runner) {
		r.executablePath = path
	}
}

// WithEnv appends environment variables for the tool.
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// New creates a Runner for command (DefaultTool when empty) with the
// given extra arguments.
func New(command string, args []string, opts ...Option) *Runner {
	if command == "" {
		command = DefaultTool
	}
	r := &Runner{command: command, args: args}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindTool locates the tool using the following search order:
// 1. Explicit path (command contains a path separator)
// 2. Sibling binary (next to sitebuild)
// 3. PATH lookup
func (r *Runner) FindTool() (string, error) {
	if strings.ContainsRune(r.command, filepath.Separator) || strings.ContainsRune(r.command, '/') {
		if fileExists(r.command) {
			return filepath.Abs(r.command)
		}
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, r.command)
	}

	exe := r.executablePath
	if exe == "" {
		if e, err := os.Executable(); err == nil {
			exe = e
		}
	}
	if exe != "" {
		if path := r.findSibling(exe); path != "" {
			return path, nil
		}
	}

	if path, err := exec.LookPath(r.command); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s", ErrToolNotFound, r.command)
}

// findSibling looks for the tool next to the sitebuild binary.
func (r *Runner) findSibling(exe string) string {
	sibling := filepath.Join(filepath.Dir(exe), r.command)
	if fileExists(sibling) {
		return sibling
	}
	return ""
}

// Args returns the tool arguments for a job. {in} and {out} placeholders
// are substituted; without placeholders both directories are appended.
func (r *Runner) Args(job Job) []string {
	args := make([]string, 0, len(r.args)+2)
	substituted := false
	for _, a := range r.args {
		if strings.Contains(a, "{in}") || strings.Contains(a, "{out}") {
			substituted = true
			a = strings.ReplaceAll(a, "{in}", job.InDir)
			a = strings.ReplaceAll(a, "{out}", job.OutDir)
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, job.InDir, job.OutDir)
	}
	return args
}

// Process runs the tool for one job and waits for it to exit. Output is
// captured and attached to the returned error on failure.
func (r *Runner) Process(ctx context.Context, job Job) error {
	toolPath, err := r.FindTool()
	if err != nil {
		return err
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, toolPath, r.Args(job)...)
	cmd.Dir = filepath.Dir(job.InDir)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.Env = append(os.Environ(), r.env...)
	cmd.Env = append(cmd.Env,
		"SITEBUILD_IN="+job.InDir,
		"SITEBUILD_OUT="+job.OutDir,
		fmt.Sprintf("SITEBUILD_BATCH=%d", job.Batch),
	)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ToolError{
				Path:     toolPath,
				ExitCode: exitErr.ExitCode(),
				Output:   tail(out.String(), maxOutputTail),
				Err:      err,
			}
		}
		return fmt.Errorf("failed to run %s: %w", toolPath, err)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
