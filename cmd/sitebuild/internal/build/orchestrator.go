package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/incremental"
	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/runner"
	"github.com/albertocavalcante/sitebuild/internal/errors"
	"github.com/albertocavalcante/sitebuild/internal/log"
	"github.com/albertocavalcante/sitebuild/internal/metrics"
)

// Orchestrator runs incremental builds.
type Orchestrator struct {
	cfg         Config
	proc        runner.Processor
	sources     map[string]Source
	invocations atomic.Int64
}

// New creates an orchestrator. The configuration is validated here so that
// errors surface before any work starts.
func New(cfg Config, proc runner.Processor) (*Orchestrator, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, errors.ConfigError("tool", "no processor configured")
	}
	sources := make(map[string]Source, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources[s.Tag] = s
	}
	return &Orchestrator{cfg: cfg, proc: proc, sources: sources}, nil
}

// Build brings the target directory up to date with inputs. prev is the
// manifest of the previous build (nil on a first build), inputs is the
// current scan. Changed assets are processed in parallel batches; unchanged
// ones keep their artifacts. The manifest is written last.
//
// A failed batch is retried per the retry policy and then reported as a
// warning; the result covers every other batch. An error is returned for
// fatal conditions: no inputs, a manifest that cannot be written, a build in
// which nothing could be processed, or cancellation. The result is non-nil
// whenever the target directory was modified.
func (o *Orchestrator) Build(ctx context.Context, prev, inputs *incremental.Manifest) (*Result, error) {
	start := o.cfg.Now()
	logger := o.cfg.Logger
	rec := o.cfg.Recorder
	target := o.cfg.Target()

	if inputs.Len() == 0 {
		return nil, errors.EmptyInputError()
	}
	for _, p := range inputs.Paths() {
		e := inputs.Entries[p]
		if _, ok := o.sources[e.Source]; !ok {
			return nil, errors.InputError(p, fmt.Errorf("unknown source %q", e.Source))
		}
	}

	cs := prev.Diff(inputs, o.cfg.PipelineVersion)
	if prev != nil && prev.PipelineVersion != o.cfg.PipelineVersion {
		logger.Info("pipeline version changed, reprocessing everything",
			"previous", prev.PipelineVersion, "current", o.cfg.PipelineVersion)
	}
	for _, p := range slices.Clone(cs.Unchanged) {
		e, _ := prev.Get(p)
		if !outputsExist(o.cfg.SiteDir, e.Outputs) {
			logger.Debug("artifacts missing, reprocessing", log.Asset(p))
			cs.MarkModified(p)
		}
	}

	res := &Result{Changes: cs, DryRun: o.cfg.DryRun}
	rec.SetConcurrency(o.cfg.Concurrency)
	rec.SetAssets("unchanged", len(cs.Unchanged))
	rec.SetAssets("removed", len(cs.Removed))

	if o.cfg.DryRun {
		res.Batches = len(planBatches(entries(inputs, cs.Changed()), o.cfg.Concurrency, o.cfg.BatchSize))
		rec.SetAssets("changed", len(cs.Changed()))
		o.logPlan(cs, res.Batches)
		res.Outcome = metrics.OutcomeSuccess
		res.Duration = o.cfg.Now().Sub(start)
		return res, nil
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, errors.InternalError("failed to create target directory", err).WithContext("path", target)
	}

	col := newCollector(o.cfg.SiteDir, target, prev, logger)

	// Unchanged assets keep their artifacts; failing to carry one forward
	// makes it changed.
	for _, p := range slices.Clone(cs.Unchanged) {
		prevEntry, _ := prev.Get(p)
		if err := col.carry(inputs.Entries[p], prevEntry); err != nil {
			logger.Warn("reprocessing asset", log.Asset(p), log.Err(err))
			cs.MarkModified(p)
		}
	}
	for _, p := range cs.Removed {
		prevEntry, _ := prev.Get(p)
		logger.Debug("asset removed", log.Asset(p))
		col.remove(prevEntry)
	}

	changed := cs.Changed()
	col.expect(changed)
	rec.SetAssets("changed", len(changed))
	batches := planBatches(entries(inputs, changed), o.cfg.Concurrency, o.cfg.BatchSize)
	res.Batches = len(batches)
	logger.Info("starting build",
		"changed", len(changed), "unchanged", len(cs.Unchanged), "removed", len(cs.Removed),
		"batches", len(batches), "concurrency", o.cfg.Concurrency)

	o.dispatch(ctx, batches, col)
	canceled := ctx.Err() != nil && len(col.skipped) > 0

	if err := o.finishSite(col); err != nil {
		return nil, err
	}

	col.next.PipelineVersion = o.cfg.PipelineVersion
	if prev != nil && col.next.SameContent(prev) {
		col.next.BuildID, col.next.GeneratedAt = prev.BuildID, prev.GeneratedAt
	} else {
		col.next.Stamp(o.cfg.Now())
	}
	store := incremental.NewJSONStore(target)
	if err := store.Save(col.next); err != nil {
		return nil, errors.ManifestError(store.Path(), err)
	}

	o.fillResult(res, col)
	res.Duration = o.cfg.Now().Sub(start)

	var err error
	switch {
	case canceled:
		res.Outcome = metrics.OutcomeCanceled
		err = errors.CanceledError(ctx.Err()).WithContext("skipped", len(res.Skipped))
	case len(changed) > 0 && len(res.Processed) == 0:
		res.Outcome = metrics.OutcomeFailed
		err = errors.TotalFailureError(res.FailedBatches)
	case len(res.Failed) > 0 || len(res.Warnings) > 0:
		res.Outcome = metrics.OutcomePartial
	default:
		res.Outcome = metrics.OutcomeSuccess
	}

	rec.SetAssets("failed", len(res.Failed))
	rec.SetAssets("skipped", len(res.Skipped))
	rec.ObserveBuildDuration(res.Duration)
	rec.IncBuildOutcome(res.Outcome)

	logger.Info("build finished",
		"outcome", res.Outcome, "processed", len(res.Processed), "failed", len(res.Failed),
		"skipped", len(res.Skipped), "warnings", len(res.Warnings), "duration", res.Duration)
	return res, err
}

// dispatch runs batches on a bounded worker pool. Once ctx is done no
// further batch starts; batches never started keep their previous state.
func (o *Orchestrator) dispatch(ctx context.Context, batches []*batch, col *collector) {
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)

	for i, b := range batches {
		if ctx.Err() != nil {
			for _, rest := range batches[i:] {
				col.skip(rest.assets)
			}
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				col.skip(b.assets)
				return nil
			}
			o.runBatch(ctx, b, col)
			return nil
		})
	}
	_ = g.Wait()
}

// finishSite copies statics, prunes unowned files and writes the list of
// modified site paths.
func (o *Orchestrator) finishSite(col *collector) error {
	target := col.target
	logger := o.cfg.Logger

	statics := make(map[string]bool, len(o.cfg.Static))
	for _, src := range o.cfg.Static {
		name := filepath.Base(src)
		statics[name] = true
		dst := filepath.Join(target, name)
		if !fileExists(src) {
			logger.Warn("static file not found", log.Path(src))
			col.warn(Warning{Path: src, Message: "static file not found"})
			continue
		}
		if sameContent(src, dst) {
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return errors.InternalError("failed to copy static file", err).WithContext("path", src)
		}
		col.modified[name] = struct{}{}
	}

	if o.cfg.Prune {
		keep := make(map[string]bool)
		for name := range statics {
			keep[name] = true
		}
		keep[ModifiedFilesName] = true
		for _, e := range col.next.Entries {
			for _, out := range e.Outputs {
				keep[out] = true
			}
		}
		removed, err := pruneUnowned(target, keep)
		for _, rel := range removed {
			logger.Debug("pruned", log.Path(rel))
			col.modified[rel] = struct{}{}
		}
		if err != nil {
			return errors.InternalError("failed to prune target directory", err).WithContext("path", target)
		}
	}

	if len(col.modified) == 0 {
		return nil
	}
	list := make([]string, 0, len(col.modified))
	for p := range col.modified {
		list = append(list, p)
	}
	slices.Sort(list)
	data := strings.Join(list, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(target, ModifiedFilesName), []byte(data), 0o644); err != nil {
		return errors.InternalError("failed to write change list", err).WithContext("path", target)
	}
	return nil
}

func (o *Orchestrator) fillResult(res *Result, col *collector) {
	res.Manifest = col.next
	res.Processed = sorted(col.processed)
	res.Failed = sorted(col.failed)
	res.Skipped = sorted(col.skipped)
	res.Warnings = col.warnings
	res.FailedBatches = col.failedBatches
	res.ToolInvocations = int(o.invocations.Load())

	res.Modified = make([]string, 0, len(col.modified))
	for p := range col.modified {
		res.Modified = append(res.Modified, p)
	}
	slices.Sort(res.Modified)

	res.Output = make(Output)
	for _, p := range col.next.Paths() {
		e := col.next.Entries[p]
		for _, out := range e.Outputs {
			var size int64
			if info, err := os.Stat(sitePath(col.target, out)); err == nil {
				size = info.Size()
			}
			res.Output[out] = Artifact{Asset: p, Size: size, Fresh: col.fresh[out]}
		}
	}
}

func (o *Orchestrator) logPlan(cs *incremental.ChangeSet, batches int) {
	logger := o.cfg.Logger
	for _, p := range cs.Changed() {
		logger.Info("would process", log.Asset(p))
	}
	for _, p := range cs.Removed {
		logger.Info("would remove outputs", log.Asset(p))
	}
	logger.Info("dry run complete",
		"changed", len(cs.Changed()), "unchanged", len(cs.Unchanged), "removed", len(cs.Removed), "batches", batches)
}

// entries resolves paths to their input entries.
func entries(m *incremental.Manifest, paths []string) []*incremental.Entry {
	out := make([]*incremental.Entry, 0, len(paths))
	for _, p := range paths {
		if e, ok := m.Get(p); ok {
			out = append(out, e)
		}
	}
	return out
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	if out == nil {
		out = []string{}
	}
	return out
}
