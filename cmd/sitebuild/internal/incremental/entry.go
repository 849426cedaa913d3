// Package incremental tracks source assets across builds. It scans source
// directories, hashes their contents and compares the result with the
// manifest persisted alongside the previous site.
package incremental

import (
	"path"
	"slices"
	"strings"
)

// Entry represents a single source asset: where it came from, its content
// hash and the site artifacts produced from it.
type Entry struct {
	Path    string   `json:"path"`     // <source>/<path within source>, slash separated
	Source  string   `json:"source"`   // source tag
	Hash    string   `json:"hash"`     // xxHash64 hex of content and sidecar metadata
	ModTime int64    `json:"mtime_ns"` // UnixNano
	Size    int64    `json:"size"`
	Outputs []string `json:"outputs,omitempty"` // site-relative artifact paths, sorted
}

// AssetKey builds the manifest key of a file inside a source.
func AssetKey(source, rel string) string {
	return path.Join(source, strings.ReplaceAll(rel, "\\", "/"))
}

// RelPath returns the asset path relative to its source root.
func (e *Entry) RelPath() string {
	return strings.TrimPrefix(e.Path, e.Source+"/")
}

// Stem returns the site-relative path of the asset without its extension.
// Artifacts derived from the asset share this prefix.
func (e *Entry) Stem() string {
	return strings.TrimSuffix(e.Path, path.Ext(e.Path))
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Outputs = slices.Clone(e.Outputs)
	return &c
}

// equal compares the fields that describe content. ModTime and Size only
// seed hash reuse and are ignored.
func (e *Entry) equal(o *Entry) bool {
	return e.Path == o.Path &&
		e.Source == o.Source &&
		e.Hash == o.Hash &&
		slices.Equal(e.Outputs, o.Outputs)
}
