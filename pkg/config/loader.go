package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "sitebuild.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".sitebuild"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "sitebuild"

// Load loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/sitebuild/config.toml)
//  3. Project config (.sitebuild/config.toml or sitebuild.toml)
//  4. Environment variables (SITEBUILD_*)
//
// CLI flags are applied separately after Load() returns.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
func LoadFrom(dir string) (*Config, error) {
	cfg := NewConfig()

	// Layer 2: Global user config
	globalCfg, err := loadGlobalConfig()
	if err != nil {
		return nil, err
	}
	cfg.Merge(globalCfg)

	// Layer 3: Project config from specified directory
	projectCfg, err := loadProjectConfigFrom(dir)
	if err != nil {
		return nil, err
	}
	cfg.Merge(projectCfg)

	// Layer 4: Environment variables
	if err := applyEnvironmentVariables(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile loads an explicitly named config file on top of the defaults and
// environment. Unlike the search in LoadFrom, a missing file is an error.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	globalCfg, err := loadGlobalConfig()
	if err != nil {
		return nil, err
	}
	cfg.Merge(globalCfg)

	fileCfg, err := loadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if fileCfg == nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	cfg.Merge(fileCfg)

	if err := applyEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadGlobalConfig loads the global user configuration from ~/.config/sitebuild/config.toml.
func loadGlobalConfig() (*Config, error) {
	path := GetGlobalConfigPath()
	if path == "" {
		return nil, nil
	}
	return loadConfigFile(path)
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) (*Config, error) {
	// Search up the directory tree for config files
	current := dir
	for {
		for _, candidate := range GetProjectConfigPaths(current) {
			cfg, err := loadConfigFile(candidate)
			if err != nil {
				return nil, err
			}
			if cfg != nil {
				return cfg, nil
			}
		}

		// Stop at filesystem root or repository root
		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil, nil
}

// isWorkspaceRoot checks if the directory is a repository root.
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", ".hg"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file. A missing file
// yields (nil, nil); a file that exists but does not parse is an error.
// Relative source, root, dest and static paths are resolved against the
// directory holding the file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}

	base := filepath.Dir(path)
	// A config inside .sitebuild/ describes the directory above it.
	if filepath.Base(base) == ConfigDirName {
		base = filepath.Dir(base)
	}
	cfg.resolvePaths(base)

	return &cfg, nil
}

// resolvePaths makes relative paths absolute against base.
func (c *Config) resolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Build.Root = resolve(c.Build.Root)
	c.Build.Dest = resolve(c.Build.Dest)
	c.Build.WorkDir = resolve(c.Build.WorkDir)
	for i := range c.Sources {
		c.Sources[i].Path = resolve(c.Sources[i].Path)
		c.Sources[i].Metadata = resolveMetadata(c.Sources[i])
	}
	for i := range c.Static {
		c.Static[i] = resolve(c.Static[i])
	}
}

// resolveMetadata keeps metadata paths relative to their source directory.
func resolveMetadata(src SourceConfig) string {
	if src.Metadata == "" || filepath.IsAbs(src.Metadata) {
		return src.Metadata
	}
	return filepath.Join(src.Path, src.Metadata)
}

// applyEnvironmentVariables applies SITEBUILD_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) error {
	if v := os.Getenv("SITEBUILD_ROOT"); v != "" {
		cfg.Build.Root = v
	}
	if v := os.Getenv("SITEBUILD_DEST"); v != "" {
		cfg.Build.Dest = v
	}
	if err := applyIntEnv("SITEBUILD_CONCURRENCY", &cfg.Build.Concurrency); err != nil {
		return err
	}
	if err := applyIntEnv("SITEBUILD_BATCH_SIZE", &cfg.Build.BatchSize); err != nil {
		return err
	}
	if v := os.Getenv("SITEBUILD_PIPELINE_VERSION"); v != "" {
		cfg.Build.PipelineVersion = v
	}
	applyBoolEnv("SITEBUILD_PRUNE", &cfg.Build.Prune)
	applyBoolEnv("SITEBUILD_TRUST_MTIME", &cfg.Build.TrustModTime)
	if v := os.Getenv("SITEBUILD_WORK_DIR"); v != "" {
		cfg.Build.WorkDir = v
	}

	// SITEBUILD_TOOL: command, optionally followed by arguments
	if v := os.Getenv("SITEBUILD_TOOL"); v != "" {
		fields := strings.Fields(v)
		cfg.Tool.Command = fields[0]
		if len(fields) > 1 {
			cfg.Tool.Args = fields[1:]
		}
	}

	if v := os.Getenv("SITEBUILD_RETRY_MODE"); v != "" {
		cfg.Retry.Mode = v
	}
	if v := os.Getenv("SITEBUILD_RETRY_INITIAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SITEBUILD_RETRY_INITIAL: %w", err)
		}
		cfg.Retry.Initial = d
	}
	if v := os.Getenv("SITEBUILD_RETRY_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SITEBUILD_RETRY_MAX_RETRIES: %w", err)
		}
		cfg.Retry.MaxRetries = &n
	}

	// SITEBUILD_STATIC: comma-separated list of static files
	if v := os.Getenv("SITEBUILD_STATIC"); v != "" {
		cfg.Static = splitAndTrim(v)
	}
	if v := os.Getenv("SITEBUILD_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// applyIntEnv applies an integer environment variable.
func applyIntEnv(envVar string, target *int) error {
	v := os.Getenv(envVar)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", envVar, err)
	}
	*target = n
	return nil
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
