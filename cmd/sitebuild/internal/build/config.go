// Package build implements the incremental build orchestrator: it partitions
// input assets against the previous manifest, processes changed assets in
// bounded parallel batches through an external tool and merges the results
// with carried-over artifacts into a complete site directory.
package build

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/albertocavalcante/sitebuild/internal/errors"
	"github.com/albertocavalcante/sitebuild/internal/log"
	"github.com/albertocavalcante/sitebuild/internal/metrics"
	"github.com/albertocavalcante/sitebuild/internal/retry"
)

// Source is a resolved input directory.
type Source struct {
	Tag      string // first path segment of its assets and artifacts
	Dir      string
	Metadata string // optional sidecar file staged with every batch
}

// Config configures an Orchestrator.
type Config struct {
	// SiteDir is the previous build output. It may not exist yet.
	SiteDir string

	// DestDir receives the new site. Empty builds in place in SiteDir.
	DestDir string

	Sources []Source

	// Concurrency bounds parallel tool invocations. Must be >= 1.
	Concurrency int

	// BatchSize is the number of assets per tool invocation. Zero spreads
	// the changed assets over Concurrency batches.
	BatchSize int

	// PipelineVersion is recorded in the manifest; a mismatch with the
	// previous manifest reprocesses everything.
	PipelineVersion string

	// Prune deletes files in the target that no asset owns.
	Prune bool

	// Static files are copied into the target root when their content differs.
	Static []string

	// WorkDir holds batch staging directories (default: OS temp dir).
	WorkDir string

	// DryRun computes the plan without running the tool or writing files.
	DryRun bool

	// Retry applies to failed batches. The zero value means DefaultPolicy.
	Retry retry.Policy

	Recorder metrics.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Target returns the directory the new site is written to.
func (c *Config) Target() string {
	if c.DestDir != "" {
		return c.DestDir
	}
	return c.SiteDir
}

func (c *Config) setDefaults() {
	if c.Retry == (retry.Policy{}) {
		c.Retry = retry.DefaultPolicy()
	}
	if c.Recorder == nil {
		c.Recorder = metrics.NoopRecorder{}
	}
	if c.Logger == nil {
		c.Logger = log.Component("build")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

func (c *Config) validate() error {
	if c.Target() == "" {
		return errors.ConfigError("build.root", "required")
	}
	if c.Concurrency < 1 {
		return errors.ConfigError("build.concurrency", fmt.Sprintf("must be >= 1, got %d", c.Concurrency))
	}
	if c.BatchSize < 0 {
		return errors.ConfigError("build.batch_size", fmt.Sprintf("must be >= 0, got %d", c.BatchSize))
	}
	if err := c.Retry.Validate(); err != nil {
		return errors.ConfigError("retry", err.Error())
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Tag == "" || strings.ContainsAny(s.Tag, `/\`) || strings.HasPrefix(s.Tag, ".") {
			return errors.ConfigError("sources", fmt.Sprintf("invalid source tag %q", s.Tag))
		}
		if seen[s.Tag] {
			return errors.ConfigError("sources", fmt.Sprintf("duplicate source tag %q", s.Tag))
		}
		seen[s.Tag] = true
		if c.Prune && within(c.Target(), s.Dir) {
			return errors.ConfigError("build.prune", fmt.Sprintf("source %q lives inside the target directory", s.Tag))
		}
	}
	return nil
}

// within reports whether path is dir or below it.
func within(dir, path string) bool {
	a, err1 := filepath.Abs(dir)
	b, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(a, b)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
