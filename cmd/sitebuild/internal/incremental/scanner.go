package incremental

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoredDirs are directory name prefixes never descended into.
var IgnoredDirs = []string{".", "node_modules"}

// ScanConfig configures the scanner for one source.
type ScanConfig struct {
	Source     string   // source tag
	Root       string   // source directory
	Include    []string // doublestar patterns; empty matches everything
	Exclude    []string
	Metadata   string   // optional sidecar file
	IgnoreDirs []string // additional dir prefixes to ignore
}

// ScanOptions controls hashing during a scan.
type ScanOptions struct {
	// Previous is consulted when TrustModTime is set.
	Previous *Manifest

	// TrustModTime reuses the previous hash for assets whose size and mtime
	// are unchanged instead of rehashing them.
	TrustModTime bool
}

// Scanner builds a Manifest of input assets by walking a source directory.
type Scanner struct {
	cfg        ScanConfig
	ignoreDirs []string
	metaFile   string
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScanConfig) *Scanner {
	ignoreDirs := make([]string, len(IgnoredDirs))
	copy(ignoreDirs, IgnoredDirs)
	ignoreDirs = append(ignoreDirs, cfg.IgnoreDirs...)

	metaFile := ""
	if cfg.Metadata != "" {
		metaFile = cfg.Metadata
		if !filepath.IsAbs(metaFile) {
			metaFile = filepath.Join(cfg.Root, metaFile)
		}
	}

	return &Scanner{
		cfg:        cfg,
		ignoreDirs: ignoreDirs,
		metaFile:   metaFile,
	}
}

// Source returns the source tag.
func (s *Scanner) Source() string { return s.cfg.Source }

// Root returns the source directory.
func (s *Scanner) Root() string { return s.cfg.Root }

// MetadataFile returns the absolute sidecar path, or "".
func (s *Scanner) MetadataFile() string { return s.metaFile }

// Scan walks the source and returns a manifest of its assets (no outputs).
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*Manifest, error) {
	info, err := os.Stat(s.cfg.Root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", s.cfg.Root)
	}

	md, err := LoadMetadata(s.metaFile)
	if err != nil {
		return nil, err
	}

	idx := NewManifest()
	err = filepath.WalkDir(s.cfg.Root, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}

		if d.IsDir() {
			if p == s.cfg.Root {
				return nil
			}
			if s.IgnoresDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || p == s.metaFile {
			return nil
		}

		rel, err := filepath.Rel(s.cfg.Root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !s.Matches(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		entry := &Entry{
			Path:    AssetKey(s.cfg.Source, rel),
			Source:  s.cfg.Source,
			ModTime: fi.ModTime().UnixNano(),
			Size:    fi.Size(),
		}

		meta := md.Fingerprint(rel)
		if hash, ok := reusableHash(opts, entry, meta); ok {
			entry.Hash = hash
		} else {
			hash, err := HashAsset(p, meta)
			if err != nil {
				return err
			}
			entry.Hash = hash
		}

		idx.Add(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// IgnoresDir reports whether a directory with the given name is skipped.
func (s *Scanner) IgnoresDir(name string) bool {
	for _, prefix := range s.ignoreDirs {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Matches applies include and exclude patterns to a slash path relative to
// the source root.
func (s *Scanner) Matches(rel string) bool {
	if len(s.cfg.Include) > 0 {
		included := false
		for _, pattern := range s.cfg.Include {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, pattern := range s.cfg.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	return true
}

// reusableHash returns the previous hash when mtime and size are unchanged.
// Assets with sidecar metadata are always rehashed since the sidecar may have
// changed independently.
func reusableHash(opts ScanOptions, e *Entry, meta []byte) (string, bool) {
	if !opts.TrustModTime || len(meta) > 0 {
		return "", false
	}
	prev, ok := opts.Previous.Get(e.Path)
	if !ok || prev.Hash == "" {
		return "", false
	}
	if prev.ModTime == e.ModTime && prev.Size == e.Size {
		return prev.Hash, true
	}
	return "", false
}
