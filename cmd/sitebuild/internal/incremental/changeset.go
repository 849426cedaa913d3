package incremental

import (
	"slices"
	"strings"
)

// ChangeSet partitions the current inputs against the previous manifest.
type ChangeSet struct {
	Added     []string `json:"added"`
	Modified  []string `json:"modified"`
	Unchanged []string `json:"unchanged"`
	Removed   []string `json:"removed"`
}

// NewChangeSet creates an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Added:     []string{},
		Modified:  []string{},
		Unchanged: []string{},
		Removed:   []string{},
	}
}

// Changed returns the sorted assets that must be processed.
func (cs *ChangeSet) Changed() []string {
	if cs == nil {
		return nil
	}
	changed := make([]string, 0, len(cs.Added)+len(cs.Modified))
	changed = append(changed, cs.Added...)
	changed = append(changed, cs.Modified...)
	slices.Sort(changed)
	return changed
}

// IsEmpty returns true if nothing needs processing or removal.
func (cs *ChangeSet) IsEmpty() bool {
	if cs == nil {
		return true
	}
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Removed) == 0
}

// MarkModified moves an unchanged asset to Modified. It is used when the
// previous artifacts of an asset turn out to be missing.
func (cs *ChangeSet) MarkModified(path string) bool {
	if cs == nil {
		return false
	}
	i := slices.Index(cs.Unchanged, path)
	if i < 0 {
		return false
	}
	cs.Unchanged = slices.Delete(cs.Unchanged, i, i+1)
	cs.Modified = append(cs.Modified, path)
	slices.Sort(cs.Modified)
	return true
}

// AffectedSources returns sorted unique source tags with changes.
func (cs *ChangeSet) AffectedSources() []string {
	if cs == nil {
		return nil
	}

	sources := make(map[string]struct{})
	for _, list := range [][]string{cs.Added, cs.Modified, cs.Removed} {
		for _, p := range list {
			tag, _, _ := strings.Cut(p, "/")
			sources[tag] = struct{}{}
		}
	}

	result := make([]string, 0, len(sources))
	for s := range sources {
		result = append(result, s)
	}
	slices.Sort(result)
	return result
}

// sort sorts all slices for deterministic output.
func (cs *ChangeSet) sort() {
	if cs == nil {
		return
	}
	slices.Sort(cs.Added)
	slices.Sort(cs.Modified)
	slices.Sort(cs.Unchanged)
	slices.Sort(cs.Removed)
}
