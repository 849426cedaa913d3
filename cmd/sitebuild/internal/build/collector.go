package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/incremental"
	"github.com/albertocavalcante/sitebuild/internal/log"
)

// collector accumulates batch results. Workers hand it their staged output;
// all mutation of the target directory and the next manifest happens under
// its mutex, one batch at a time.
type collector struct {
	mu sync.Mutex

	siteDir string
	target  string
	prev    *incremental.Manifest
	next    *incremental.Manifest
	logger  *slog.Logger

	fresh    map[string]bool     // outputs produced by this build
	modified map[string]struct{} // site paths rewritten or deleted

	claimed    map[string]string // output -> asset recorded in next
	prevOwners map[string]string // output -> asset recorded in prev
	pending    map[string]bool   // changed assets not yet committed or failed

	processed     []string
	failed        []string
	skipped       []string
	warnings      []Warning
	failedBatches int
}

func newCollector(siteDir, target string, prev *incremental.Manifest, logger *slog.Logger) *collector {
	return &collector{
		siteDir:  siteDir,
		target:   target,
		prev:     prev,
		next:     incremental.NewManifest(),
		logger:   logger,
		fresh:    make(map[string]bool),
		modified: make(map[string]struct{}),

		claimed:    make(map[string]string),
		prevOwners: prev.Owners(),
		pending:    make(map[string]bool),
	}
}

// expect registers the changed assets about to be dispatched.
func (c *collector) expect(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		c.pending[p] = true
	}
}

// record adds an entry to the next manifest and claims its outputs.
func (c *collector) record(e *incremental.Entry) {
	c.next.Add(e)
	for _, out := range e.Outputs {
		c.claimed[out] = e.Path
	}
}

// ownedElsewhere returns the asset other than path that holds out: one
// already recorded in the next manifest, or the previous owner while it is
// still waiting to be processed.
func (c *collector) ownedElsewhere(path, out string, batchAssets map[string]bool) string {
	if owner, ok := c.claimed[out]; ok && owner != path {
		return owner
	}
	if owner, ok := c.prevOwners[out]; ok && owner != path && c.pending[owner] && !batchAssets[owner] {
		return owner
	}
	return ""
}

func (c *collector) warn(w Warning) {
	c.warnings = append(c.warnings, w)
}

// carry records an unchanged asset with its previous outputs, copying them
// into the target when it differs from the previous site.
func (c *collector) carry(current, previous *incremental.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.copyForward(previous.Outputs); err != nil {
		return err
	}
	e := current.Clone()
	e.ModTime, e.Size = previous.ModTime, previous.Size
	e.Outputs = slices.Clone(previous.Outputs)
	c.record(e)
	return nil
}

func (c *collector) copyForward(outputs []string) error {
	if filepath.Clean(c.siteDir) == filepath.Clean(c.target) {
		return nil
	}
	for _, out := range outputs {
		if err := copyFile(sitePath(c.siteDir, out), sitePath(c.target, out)); err != nil {
			return fmt.Errorf("failed to carry %s forward: %w", out, err)
		}
	}
	return nil
}

// remove deletes outputs of an asset that is gone from the inputs.
func (c *collector) remove(previous *incremental.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeOutputs(previous.Path, previous.Outputs, nil)
}

// removeOutputs deletes the outputs of asset from the target, except those
// in keep and those another asset has claimed in the next manifest.
func (c *collector) removeOutputs(asset string, outputs []string, keep map[string]bool) {
	for _, out := range outputs {
		if keep[out] {
			continue
		}
		if owner, ok := c.claimed[out]; ok && owner != asset {
			continue
		}
		p := sitePath(c.target, out)
		err := os.Remove(p)
		switch {
		case err == nil:
			c.modified[out] = struct{}{}
			removeEmptyParents(c.target, filepath.Dir(p))
		case os.IsNotExist(err):
		default:
			c.logger.Warn("failed to remove stale output", log.Path(out), log.Err(err))
			c.warn(Warning{Path: out, Message: fmt.Sprintf("failed to remove stale output: %v", err)})
		}
	}
}

// commit moves a batch's outputs into the target and records its assets.
// An asset whose output belongs to another asset fails on its own. If any
// move fails the outputs already moved are removed again and the whole
// batch is treated as failed.
func (c *collector) commit(b *batch, s *staged) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, out := range s.unattributed {
		c.logger.Warn("dropping output not attributable to any asset", log.Batch(b.id), log.Path(out))
		c.warn(Warning{Batch: b.id, Path: out, Message: "output not attributable to any asset, dropped"})
	}

	inBatch := make(map[string]bool, len(b.assets))
	for _, a := range b.assets {
		inBatch[a.Path] = true
	}
	conflicts := make(map[string]bool)
	for _, a := range b.assets {
		for _, out := range s.outputs[a.Path] {
			owner := c.ownedElsewhere(a.Path, out, inBatch)
			if owner == "" {
				continue
			}
			c.logger.Warn("output already produced by another asset",
				log.Batch(b.id), log.Asset(a.Path), log.Path(out), "owner", owner)
			c.warn(Warning{Batch: b.id, Asset: a.Path, Path: out,
				Message: fmt.Sprintf("output already produced by %s", owner)})
			conflicts[a.Path] = true
			break
		}
	}

	var done []*incremental.Entry
	var moved []string
	for _, a := range b.assets {
		outs := s.outputs[a.Path]
		if len(outs) == 0 || conflicts[a.Path] {
			continue
		}
		for _, out := range outs {
			if err := moveFile(sitePath(s.outDir, out), sitePath(c.target, out)); err != nil {
				c.logger.Error("failed to commit batch", log.Batch(b.id), log.Path(out), log.Err(err))
				c.removeOutputs("", moved, nil)
				c.failLocked(b, fmt.Errorf("failed to move %s into the site: %w", out, err))
				return
			}
			moved = append(moved, out)
			c.logger.Log(context.Background(), log.LevelTrace, "committed output", log.Batch(b.id), log.Path(out))
		}
		done = append(done, a)
	}

	for _, a := range done {
		outs := slices.Clone(s.outputs[a.Path])
		slices.Sort(outs)
		keep := make(map[string]bool, len(outs))
		for _, out := range outs {
			keep[out] = true
			c.fresh[out] = true
			c.modified[out] = struct{}{}
		}
		e := a.Clone()
		e.Outputs = outs
		c.record(e)
		delete(c.pending, a.Path)
		if prev, ok := c.prev.Get(a.Path); ok {
			c.removeOutputs(a.Path, prev.Outputs, keep)
		}
		c.processed = append(c.processed, a.Path)
	}

	for _, a := range b.assets {
		switch {
		case conflicts[a.Path]:
			c.dropAsset(a.Path)
		case len(s.outputs[a.Path]) == 0:
			c.logger.Warn("tool produced no outputs for asset", log.Batch(b.id), log.Asset(a.Path))
			c.warn(Warning{Batch: b.id, Asset: a.Path, Message: "tool produced no outputs"})
			c.dropAsset(a.Path)
		}
	}
}

// failBatch records a batch that failed after all retries.
func (c *collector) failBatch(b *batch, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(b, err)
}

func (c *collector) failLocked(b *batch, err error) {
	c.failedBatches++
	c.warn(Warning{Batch: b.id, Message: err.Error()})
	for _, a := range b.assets {
		c.dropAsset(a.Path)
	}
}

// dropAsset excludes a failed asset from the next manifest and removes its
// stale artifacts, so the next build sees it as changed.
func (c *collector) dropAsset(path string) {
	c.failed = append(c.failed, path)
	delete(c.pending, path)
	if prev, ok := c.prev.Get(path); ok {
		c.removeOutputs(path, prev.Outputs, c.fresh)
	}
}

// skip keeps the previous state of assets that were never processed.
func (c *collector) skip(assets []*incremental.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, a := range assets {
		c.skipped = append(c.skipped, a.Path)
		delete(c.pending, a.Path)
		prev, ok := c.prev.Get(a.Path)
		if !ok {
			continue
		}
		if err := c.copyForward(prev.Outputs); err != nil {
			c.logger.Warn("failed to keep previous outputs", log.Asset(a.Path), log.Err(err))
			continue
		}
		c.record(prev.Clone())
	}
}
