package incremental

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// StateDir is the directory inside the site holding build state.
	StateDir = ".sitebuild"

	// ManifestFile is the name of the manifest file.
	ManifestFile = "manifest.json"
)

// ManifestPath is the site-relative manifest location.
const ManifestPath = StateDir + "/" + ManifestFile

// Store defines the interface for manifest persistence.
type Store interface {
	Load() (*Manifest, error)
	Save(m *Manifest) error
	Exists() bool
	Path() string
}

// JSONStore implements Store using a JSON file inside the site directory.
type JSONStore struct {
	dir  string
	path string
}

// NewJSONStore creates a store for the given site directory.
// Uses .sitebuild/manifest.json within the directory.
func NewJSONStore(siteDir string) *JSONStore {
	dir := filepath.Join(siteDir, StateDir)
	return &JSONStore{
		dir:  dir,
		path: filepath.Join(dir, ManifestFile),
	}
}

// Path returns the manifest file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads the manifest from disk. If the file doesn't exist, returns nil
// with no error: a first build has no previous manifest.
func (s *JSONStore) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("manifest version %d is newer than supported version %d", m.Version, ManifestVersion)
	}

	if m.Entries == nil {
		m.Entries = make(map[string]*Entry)
	}

	return &m, nil
}

// Save writes the manifest atomically: a temp file in the same directory is
// written, synced and renamed over the old file.
func (s *JSONStore) Save(m *Manifest) (err error) {
	if m == nil {
		return fmt.Errorf("cannot save nil manifest")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	m.Version = ManifestVersion
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ManifestFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp manifest: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp manifest: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp manifest: %w", err)
	}
	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	syncDir(s.dir)
	return nil
}

// Exists returns true if the manifest file exists.
func (s *JSONStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// syncDir flushes the directory entry of a rename; errors are ignored as
// not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
