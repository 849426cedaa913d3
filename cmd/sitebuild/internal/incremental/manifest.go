package incremental

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ManifestVersion is the current version of the manifest format.
const ManifestVersion = 1

// Manifest maps asset paths to their hashes and artifacts. The manifest of
// the previous build drives change detection; a freshly scanned manifest
// (without outputs) describes the current inputs.
type Manifest struct {
	Version         int               `json:"version"`
	PipelineVersion string            `json:"pipeline_version,omitempty"`
	BuildID         string            `json:"build_id,omitempty"`
	GeneratedAt     time.Time         `json:"generated_at"`
	Entries         map[string]*Entry `json:"entries"`
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Entries: make(map[string]*Entry),
	}
}

// Add adds or updates an entry.
func (m *Manifest) Add(e *Entry) {
	if m == nil || e == nil {
		return
	}
	if m.Entries == nil {
		m.Entries = make(map[string]*Entry)
	}
	m.Entries[e.Path] = e
}

// Get retrieves an entry by path.
func (m *Manifest) Get(path string) (*Entry, bool) {
	if m == nil || m.Entries == nil {
		return nil, false
	}
	e, ok := m.Entries[path]
	return e, ok
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Entries)
}

// Paths returns the sorted asset paths.
func (m *Manifest) Paths() []string {
	if m == nil {
		return nil
	}
	paths := make([]string, 0, len(m.Entries))
	for p := range m.Entries {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Owners maps every recorded artifact path to the asset that produced it.
func (m *Manifest) Owners() map[string]string {
	owners := make(map[string]string)
	if m == nil {
		return owners
	}
	for p, e := range m.Entries {
		for _, out := range e.Outputs {
			owners[out] = p
		}
	}
	return owners
}

// Clone returns a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	c.Entries = make(map[string]*Entry, len(m.Entries))
	for p, e := range m.Entries {
		c.Entries[p] = e.Clone()
	}
	return &c
}

// SameContent reports whether two manifests record the same pipeline version
// and entries, ignoring build id and timestamp.
func (m *Manifest) SameContent(other *Manifest) bool {
	if m == nil || other == nil {
		return m.Len() == 0 && other.Len() == 0 && m.pipelineVersion() == other.pipelineVersion()
	}
	if m.PipelineVersion != other.PipelineVersion || len(m.Entries) != len(other.Entries) {
		return false
	}
	for p, e := range m.Entries {
		o, ok := other.Entries[p]
		if !ok || !e.equal(o) {
			return false
		}
	}
	return true
}

func (m *Manifest) pipelineVersion() string {
	if m == nil {
		return ""
	}
	return m.PipelineVersion
}

// Stamp assigns a new build id and generation time.
func (m *Manifest) Stamp(now time.Time) {
	m.BuildID = uuid.NewString()
	m.GeneratedAt = now.UTC().Truncate(time.Second)
}

// Diff partitions the current inputs against this (previous) manifest.
// The receiver (m) is the previous build, current is the fresh scan. When
// pipelineVersion differs from the one recorded in m, every asset is
// considered modified.
func (m *Manifest) Diff(current *Manifest, pipelineVersion string) *ChangeSet {
	cs := NewChangeSet()

	oldEntries := make(map[string]*Entry)
	newEntries := make(map[string]*Entry)

	if m != nil && m.Entries != nil {
		oldEntries = m.Entries
	}
	if current != nil && current.Entries != nil {
		newEntries = current.Entries
	}

	versionChanged := m != nil && m.PipelineVersion != pipelineVersion

	// Check for new and modified assets
	for p, newEntry := range newEntries {
		oldEntry, exists := oldEntries[p]
		switch {
		case !exists:
			cs.Added = append(cs.Added, p)
		case versionChanged || oldEntry.Hash != newEntry.Hash:
			cs.Modified = append(cs.Modified, p)
		default:
			cs.Unchanged = append(cs.Unchanged, p)
		}
	}

	// Check for removed assets
	for p := range oldEntries {
		if _, exists := newEntries[p]; !exists {
			cs.Removed = append(cs.Removed, p)
		}
	}

	cs.sort()
	return cs
}
