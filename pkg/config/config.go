// Package config provides configuration management for sitebuild.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/sitebuild/config.toml)
//  3. Project config (.sitebuild/config.toml or sitebuild.toml)
//  4. Environment variables (SITEBUILD_*)
//  5. CLI flags (highest priority)
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config is the main configuration struct for sitebuild.
type Config struct {
	// Build configures the incremental build itself.
	Build BuildConfig `toml:"build"`

	// Tool configures the external processing tool.
	Tool ToolConfig `toml:"tool"`

	// Retry configures how failed batches are retried.
	Retry RetryConfig `toml:"retry"`

	// Sources lists the input directories. Each source's tag is the first
	// path segment of its artifacts in the site.
	Sources []SourceConfig `toml:"sources"`

	// Static lists files copied verbatim into the site root (e.g. index.html).
	Static []string `toml:"static"`

	// Log configures logging output.
	Log LogConfig `toml:"log"`
}

// BuildConfig holds orchestrator settings.
type BuildConfig struct {
	// Root is the previous site directory (restored from a prior artifact).
	Root string `toml:"root"`

	// Dest is the output directory. Empty means build in place in Root.
	Dest string `toml:"dest"`

	// Concurrency bounds parallel invocations of the processing tool.
	Concurrency int `toml:"concurrency"`

	// BatchSize is the number of changed assets per tool invocation.
	// Zero spreads the changed assets evenly over Concurrency batches.
	BatchSize int `toml:"batch_size"`

	// PipelineVersion invalidates every manifest entry when changed.
	PipelineVersion string `toml:"pipeline_version"`

	// Prune deletes site files that no asset owns.
	Prune *bool `toml:"prune"`

	// TrustModTime reuses the previous hash when size and mtime match.
	TrustModTime *bool `toml:"trust_mtime"`

	// WorkDir holds batch staging directories. Empty means the OS temp dir.
	WorkDir string `toml:"work_dir"`
}

// ToolConfig describes the external processing tool.
type ToolConfig struct {
	// Command is the executable name or path.
	Command string `toml:"command"`

	// Args are passed before the input/output directories. The placeholders
	// {in} and {out} are substituted when present.
	Args []string `toml:"args"`
}

// RetryConfig holds retry/backoff settings for failed batches.
type RetryConfig struct {
	// Mode is one of fixed, linear, exponential.
	Mode string `toml:"mode"`

	// Initial is the base delay (e.g. "500ms").
	Initial time.Duration `toml:"initial"`

	// Max caps the delay.
	Max time.Duration `toml:"max"`

	// MaxRetries is the number of retries after the first failure.
	MaxRetries *int `toml:"max_retries"`
}

// SourceConfig describes one input directory.
type SourceConfig struct {
	// Name is the source tag; artifacts land under <site>/<name>/.
	Name string `toml:"name"`

	// Path is the local directory. For git sources it is the checkout location.
	Path string `toml:"path"`

	// URL optionally names a git repository to clone or update into Path.
	URL string `toml:"url"`

	// Branch selects the git branch (default: remote HEAD).
	Branch string `toml:"branch"`

	// Include restricts assets to matching glob patterns (doublestar syntax).
	Include []string `toml:"include"`

	// Exclude removes matching assets.
	Exclude []string `toml:"exclude"`

	// Metadata names a per-source sidecar file (JSON or YAML) whose per-image
	// entries are folded into asset hashes and staged for the tool.
	Metadata string `toml:"metadata"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Verbosity is 0=error .. 4=trace.
	Verbosity *int `toml:"verbosity"`

	// Format is "text" or "json".
	Format string `toml:"format"`
}

// DefaultInclude matches the raster formats the image tool understands.
var DefaultInclude = []string{"**/*.{jpg,jpeg,png,gif,webp,tif,tiff,heic,avif,JPG,JPEG,PNG}"}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	falseVal := false
	retries := 1
	verbosity := 1
	return &Config{
		Build: BuildConfig{
			Concurrency:  runtime.NumCPU(),
			Prune:        &falseVal,
			TrustModTime: &falseVal,
		},
		Retry: RetryConfig{
			Mode:       "fixed",
			Initial:    500 * time.Millisecond,
			Max:        5 * time.Second,
			MaxRetries: &retries,
		},
		Log: LogConfig{
			Verbosity: &verbosity,
			Format:    "text",
		},
	}
}

// DestDir returns the output directory, defaulting to Root.
func (c *Config) DestDir() string {
	if c.Build.Dest != "" {
		return c.Build.Dest
	}
	return c.Build.Root
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Merge build config
	if other.Build.Root != "" {
		c.Build.Root = other.Build.Root
	}
	if other.Build.Dest != "" {
		c.Build.Dest = other.Build.Dest
	}
	if other.Build.Concurrency != 0 {
		c.Build.Concurrency = other.Build.Concurrency
	}
	if other.Build.BatchSize != 0 {
		c.Build.BatchSize = other.Build.BatchSize
	}
	if other.Build.PipelineVersion != "" {
		c.Build.PipelineVersion = other.Build.PipelineVersion
	}
	if other.Build.Prune != nil {
		c.Build.Prune = other.Build.Prune
	}
	if other.Build.TrustModTime != nil {
		c.Build.TrustModTime = other.Build.TrustModTime
	}
	if other.Build.WorkDir != "" {
		c.Build.WorkDir = other.Build.WorkDir
	}

	// Merge tool config
	if other.Tool.Command != "" {
		c.Tool.Command = other.Tool.Command
	}
	if len(other.Tool.Args) > 0 {
		c.Tool.Args = other.Tool.Args
	}

	// Merge retry config
	if other.Retry.Mode != "" {
		c.Retry.Mode = other.Retry.Mode
	}
	if other.Retry.Initial != 0 {
		c.Retry.Initial = other.Retry.Initial
	}
	if other.Retry.Max != 0 {
		c.Retry.Max = other.Retry.Max
	}
	if other.Retry.MaxRetries != nil {
		c.Retry.MaxRetries = other.Retry.MaxRetries
	}

	// Sources and statics replace wholesale: merging lists of directories
	// from two files would silently build a site nobody configured.
	if len(other.Sources) > 0 {
		c.Sources = other.Sources
	}
	if len(other.Static) > 0 {
		c.Static = other.Static
	}

	// Merge log config
	if other.Log.Verbosity != nil {
		c.Log.Verbosity = other.Log.Verbosity
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}

// Validate checks the configuration for values the build cannot work with.
func (c *Config) Validate() error {
	if c.Build.Root == "" {
		return fmt.Errorf("build.root is required")
	}
	if c.Build.Concurrency < 1 {
		return fmt.Errorf("build.concurrency must be >= 1, got %d", c.Build.Concurrency)
	}
	if c.Build.BatchSize < 0 {
		return fmt.Errorf("build.batch_size must be >= 0, got %d", c.Build.BatchSize)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if strings.ContainsAny(src.Name, `/\`) || src.Name == "." || src.Name == ".." || strings.HasPrefix(src.Name, ".") {
			return fmt.Errorf("sources[%d]: invalid name %q", i, src.Name)
		}
		if seen[src.Name] {
			return fmt.Errorf("sources[%d]: duplicate name %q", i, src.Name)
		}
		seen[src.Name] = true
		if src.Path == "" {
			return fmt.Errorf("source %q: path is required", src.Name)
		}
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	switch c.Retry.Mode {
	case "", "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("retry.mode must be fixed, linear or exponential, got %q", c.Retry.Mode)
	}
	return nil
}

// IncludePatterns returns the effective include globs of a source.
func (s SourceConfig) IncludePatterns() []string {
	if len(s.Include) > 0 {
		return s.Include
	}
	return DefaultInclude
}

// ParseSourceFlag parses a CLI source spec of the form name=path.
func ParseSourceFlag(spec string) (SourceConfig, error) {
	name, path, ok := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	path = strings.TrimSpace(path)
	if !ok || name == "" || path == "" {
		return SourceConfig{}, fmt.Errorf("invalid source %q (want name=path)", spec)
	}
	return SourceConfig{Name: name, Path: path}, nil
}
