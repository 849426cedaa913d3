package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Build.Concurrency != runtime.NumCPU() {
		t.Errorf("concurrency should default to NumCPU, got %d", cfg.Build.Concurrency)
	}
	if cfg.Build.Prune == nil || *cfg.Build.Prune {
		t.Error("prune should be disabled by default")
	}
	if cfg.Retry.MaxRetries == nil || *cfg.Retry.MaxRetries != 1 {
		t.Error("failed batches should be retried once by default")
	}
	if cfg.Retry.Mode != "fixed" {
		t.Errorf("retry mode should be 'fixed', got %q", cfg.Retry.Mode)
	}
}

func TestDestDir(t *testing.T) {
	cfg := NewConfig()
	cfg.Build.Root = "/site"
	if got := cfg.DestDir(); got != "/site" {
		t.Errorf("DestDir() = %q, want /site", got)
	}
	cfg.Build.Dest = "/out"
	if got := cfg.DestDir(); got != "/out" {
		t.Errorf("DestDir() = %q, want /out", got)
	}
}

func TestMerge(t *testing.T) {
	base := NewConfig()
	base.Sources = []SourceConfig{{Name: "old", Path: "/old"}}

	trueVal := true
	retries := 3
	other := &Config{
		Build:   BuildConfig{Concurrency: 2, Prune: &trueVal, PipelineVersion: "2"},
		Tool:    ToolConfig{Command: "derive.sh", Args: []string{"--webp"}},
		Retry:   RetryConfig{MaxRetries: &retries},
		Sources: []SourceConfig{{Name: "imagery", Path: "/imgs/imagery"}, {Name: "banners", Path: "/banners"}},
	}

	base.Merge(other)

	if base.Build.Concurrency != 2 {
		t.Errorf("concurrency = %d, want 2", base.Build.Concurrency)
	}
	if !*base.Build.Prune {
		t.Error("prune should be enabled after merge")
	}
	if base.Tool.Command != "derive.sh" || len(base.Tool.Args) != 1 {
		t.Errorf("tool = %+v", base.Tool)
	}
	if *base.Retry.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", *base.Retry.MaxRetries)
	}
	if base.Retry.Mode != "fixed" {
		t.Errorf("retry mode should survive merge, got %q", base.Retry.Mode)
	}
	if len(base.Sources) != 2 || base.Sources[0].Name != "imagery" {
		t.Errorf("sources should be replaced, got %+v", base.Sources)
	}

	base.Merge(nil) // must not panic
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewConfig()
		cfg.Build.Root = "/site"
		cfg.Sources = []SourceConfig{{Name: "imagery", Path: "/imgs/imagery"}}
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing root", func(c *Config) { c.Build.Root = "" }},
		{"zero concurrency", func(c *Config) { c.Build.Concurrency = 0 }},
		{"negative batch size", func(c *Config) { c.Build.BatchSize = -1 }},
		{"no sources", func(c *Config) { c.Sources = nil }},
		{"unnamed source", func(c *Config) { c.Sources[0].Name = "" }},
		{"nested name", func(c *Config) { c.Sources[0].Name = "a/b" }},
		{"hidden name", func(c *Config) { c.Sources[0].Name = ".sitebuild" }},
		{"missing path", func(c *Config) { c.Sources[0].Path = "" }},
		{"duplicate", func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }},
		{"bad retry mode", func(c *Config) { c.Retry.Mode = "random" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sitebuild.toml")

	configContent := `
static = ["index.html"]

[build]
root = "../site"
concurrency = 4
pipeline_version = "2"

[tool]
command = "./derive.sh"
args = ["{in}", "{out}", "--quality", "49"]

[retry]
mode = "linear"
initial = "250ms"
max_retries = 2

[[sources]]
name = "imagery"
path = "imgs/imagery"

[[sources]]
name = "banners"
path = "banners"
include = ["*/*.jpg"]
metadata = "image_metadata.json"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := loadConfigFile(configPath)
	if err != nil {
		t.Fatalf("loadConfigFile() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("loadConfigFile returned nil")
	}

	if cfg.Build.Root != filepath.Join(filepath.Dir(tmpDir), "site") {
		t.Errorf("root should resolve against the config dir, got %q", cfg.Build.Root)
	}
	if cfg.Build.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Build.Concurrency)
	}
	if cfg.Retry.Initial != 250*time.Millisecond {
		t.Errorf("retry initial = %v, want 250ms", cfg.Retry.Initial)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
	}
	banners := cfg.Sources[1]
	if banners.Path != filepath.Join(tmpDir, "banners") {
		t.Errorf("source path = %q", banners.Path)
	}
	if banners.Metadata != filepath.Join(tmpDir, "banners", "image_metadata.json") {
		t.Errorf("metadata should resolve inside the source, got %q", banners.Metadata)
	}
	if got := banners.IncludePatterns(); len(got) != 1 || got[0] != "*/*.jpg" {
		t.Errorf("IncludePatterns() = %v", got)
	}
	if got := cfg.Sources[0].IncludePatterns(); len(got) != len(DefaultInclude) {
		t.Errorf("default include patterns expected, got %v", got)
	}
	if cfg.Static[0] != filepath.Join(tmpDir, "index.html") {
		t.Errorf("static = %v", cfg.Static)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	cfg, err := loadConfigFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil || cfg != nil {
		t.Errorf("missing file should yield (nil, nil), got (%v, %v)", cfg, err)
	}
}

func TestLoadConfigFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitebuild.toml")
	if err := os.WriteFile(path, []byte("[build]\nconcurency = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfigFile(path); err == nil {
		t.Error("expected error for misspelled key")
	}
}

func TestLoadFileRequiresFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFile() expected error for missing file")
	}
}

func TestApplyEnvironmentVariables(t *testing.T) {
	cfg := NewConfig()

	t.Setenv("SITEBUILD_ROOT", "/site")
	t.Setenv("SITEBUILD_CONCURRENCY", "3")
	t.Setenv("SITEBUILD_PRUNE", "yes")
	t.Setenv("SITEBUILD_TOOL", "derive.sh --fast")
	t.Setenv("SITEBUILD_RETRY_MAX_RETRIES", "0")
	t.Setenv("SITEBUILD_STATIC", "index.html, robots.txt")

	if err := applyEnvironmentVariables(cfg); err != nil {
		t.Fatalf("applyEnvironmentVariables() error = %v", err)
	}

	if cfg.Build.Root != "/site" {
		t.Errorf("root = %q", cfg.Build.Root)
	}
	if cfg.Build.Concurrency != 3 {
		t.Errorf("concurrency = %d, want 3", cfg.Build.Concurrency)
	}
	if !*cfg.Build.Prune {
		t.Error("prune should be enabled via env var")
	}
	if cfg.Tool.Command != "derive.sh" || len(cfg.Tool.Args) != 1 || cfg.Tool.Args[0] != "--fast" {
		t.Errorf("tool = %+v", cfg.Tool)
	}
	if *cfg.Retry.MaxRetries != 0 {
		t.Errorf("max retries = %d, want 0", *cfg.Retry.MaxRetries)
	}
	if len(cfg.Static) != 2 || cfg.Static[1] != "robots.txt" {
		t.Errorf("static = %v", cfg.Static)
	}
}

func TestApplyEnvironmentVariablesInvalidInt(t *testing.T) {
	t.Setenv("SITEBUILD_CONCURRENCY", "many")
	if err := applyEnvironmentVariables(NewConfig()); err == nil {
		t.Error("expected error for non-numeric concurrency")
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"index.html,robots.txt", []string{"index.html", "robots.txt"}},
		{" index.html , robots.txt ", []string{"index.html", "robots.txt"}},
		{"index.html", []string{"index.html"}},
		{"", []string{}},
		{" , , ", []string{}},
	}

	for _, tt := range tests {
		result := splitAndTrim(tt.input)
		if len(result) != len(tt.expected) {
			t.Errorf("splitAndTrim(%q) = %v, want %v", tt.input, result, tt.expected)
			continue
		}
		for i, v := range result {
			if v != tt.expected[i] {
				t.Errorf("splitAndTrim(%q)[%d] = %q, want %q", tt.input, i, v, tt.expected[i])
			}
		}
	}
}

func TestParseSourceFlag(t *testing.T) {
	src, err := ParseSourceFlag("imagery=../imgs/imagery")
	if err != nil {
		t.Fatalf("ParseSourceFlag() error = %v", err)
	}
	if src.Name != "imagery" || src.Path != "../imgs/imagery" {
		t.Errorf("ParseSourceFlag() = %+v", src)
	}

	for _, bad := range []string{"imagery", "=path", "name="} {
		if _, err := ParseSourceFlag(bad); err == nil {
			t.Errorf("ParseSourceFlag(%q) expected error", bad)
		}
	}
}

func TestProjectConfigSearch(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "project", "subdir")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(tmpDir, "project", ".git"), 0o755); err != nil {
		t.Fatalf("failed to create .git dir: %v", err)
	}

	configPath := filepath.Join(tmpDir, "project", ConfigDirName, "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatal(err)
	}
	configContent := `
[build]
root = "site"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := loadProjectConfigFrom(projectDir)
	if err != nil {
		t.Fatalf("loadProjectConfigFrom() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("loadProjectConfigFrom returned nil")
	}

	// .sitebuild/config.toml describes the project directory, not .sitebuild/
	if want := filepath.Join(tmpDir, "project", "site"); cfg.Build.Root != want {
		t.Errorf("root = %q, want %q", cfg.Build.Root, want)
	}
}

func TestProjectConfigSearchStopsAtRepositoryRoot(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("[build]\nroot = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	repo := filepath.Join(tmpDir, "repo")
	if err := os.MkdirAll(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadProjectConfigFrom(repo)
	if err != nil {
		t.Fatalf("loadProjectConfigFrom() error = %v", err)
	}
	if cfg != nil {
		t.Error("search should not leave the repository")
	}
}
