package incremental

import (
	"context"
	"fmt"

	"github.com/albertocavalcante/sitebuild/internal/errors"
	"github.com/albertocavalcante/sitebuild/internal/log"
)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	SiteDir         string       // directory holding the previous manifest
	Sources         []ScanConfig // one per input source
	PipelineVersion string
	TrustModTime    bool
}

// Tracker provides high-level change tracking across all sources.
type Tracker struct {
	store    Store
	scanners []*Scanner
	cfg      TrackerConfig
}

// Status is a snapshot of previous and current inputs and their partition.
type Status struct {
	Previous *Manifest // nil on a first build
	Current  *Manifest
	Changes  *ChangeSet
}

// NewTracker creates a tracker for the given site and sources.
func NewTracker(cfg TrackerConfig) *Tracker {
	scanners := make([]*Scanner, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		scanners = append(scanners, NewScanner(sc))
	}
	return &Tracker{
		store:    NewJSONStore(cfg.SiteDir),
		scanners: scanners,
		cfg:      cfg,
	}
}

// Store returns the manifest store of the site directory.
func (t *Tracker) Store() Store { return t.store }

// LoadPrevious reads the previous manifest. An unreadable manifest is
// logged and treated as absent, which forces a full rebuild.
func (t *Tracker) LoadPrevious() *Manifest {
	prev, err := t.store.Load()
	if err != nil {
		log.Component("incremental").Warn("ignoring unreadable manifest, rebuilding everything",
			log.Path(t.store.Path()), log.Err(err))
		return nil
	}
	return prev
}

// Scan walks every source and merges the results into one manifest of
// current inputs. A missing or unreadable source is an InputError.
func (t *Tracker) Scan(ctx context.Context, prev *Manifest) (*Manifest, error) {
	opts := ScanOptions{Previous: prev, TrustModTime: t.cfg.TrustModTime}
	current := NewManifest()
	current.PipelineVersion = t.cfg.PipelineVersion

	for _, s := range t.scanners {
		idx, err := s.Scan(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.CanceledError(ctx.Err())
			}
			return nil, errors.InputError(s.Root(), err).WithContext("source", s.Source())
		}
		for _, e := range idx.Entries {
			current.Add(e)
		}
		log.Component("incremental").Debug("scanned source",
			log.Source(s.Source()), log.Path(s.Root()), log.Count(idx.Len()))
	}
	return current, nil
}

// Status computes the change partition without modifying state.
func (t *Tracker) Status(ctx context.Context) (*Status, error) {
	prev := t.LoadPrevious()
	current, err := t.Scan(ctx, prev)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sources: %w", err)
	}
	return &Status{
		Previous: prev,
		Current:  current,
		Changes:  prev.Diff(current, t.cfg.PipelineVersion),
	}, nil
}

// HasState returns true if a previous manifest exists.
func (t *Tracker) HasState() bool {
	return t.store.Exists()
}

// TrackedAssetCount returns the number of assets in the stored manifest.
// Returns 0 if no manifest exists or on error.
func (t *Tracker) TrackedAssetCount() int {
	m, err := t.store.Load()
	if err != nil {
		return 0
	}
	return m.Len()
}
