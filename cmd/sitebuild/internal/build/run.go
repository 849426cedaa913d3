package build

import (
	"context"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/incremental"
	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/runner"
	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/sources"
	"github.com/albertocavalcante/sitebuild/internal/errors"
	"github.com/albertocavalcante/sitebuild/internal/metrics"
	"github.com/albertocavalcante/sitebuild/internal/retry"
	"github.com/albertocavalcante/sitebuild/pkg/config"
)

// RunOptions adjusts a Run beyond what the configuration says.
type RunOptions struct {
	// Processor replaces the configured external tool.
	Processor runner.Processor

	Recorder metrics.Recorder
	DryRun   bool

	// Offline uses existing git checkouts without fetching.
	Offline bool
}

// Run resolves the configured sources, scans them against the manifest of
// the previous site and builds the new site.
func Run(ctx context.Context, cfg *config.Config, opts RunOptions) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "invalid configuration")
	}
	policy := RetryPolicy(cfg)

	srcs, err := sources.Resolve(ctx, cfg.Sources, sources.Options{Retry: policy, Offline: opts.Offline})
	if err != nil {
		return nil, err
	}

	tracker := NewTracker(cfg, srcs)
	prev := tracker.LoadPrevious()
	inputs, err := tracker.Scan(ctx, prev)
	if err != nil {
		return nil, err
	}

	proc := opts.Processor
	if proc == nil {
		proc = runner.New(cfg.Tool.Command, cfg.Tool.Args)
	}

	bcfg := Config{
		SiteDir:         cfg.Build.Root,
		DestDir:         cfg.Build.Dest,
		Concurrency:     cfg.Build.Concurrency,
		BatchSize:       cfg.Build.BatchSize,
		PipelineVersion: cfg.Build.PipelineVersion,
		Prune:           deref(cfg.Build.Prune),
		Static:          cfg.Static,
		WorkDir:         cfg.Build.WorkDir,
		DryRun:          opts.DryRun,
		Retry:           policy,
		Recorder:        opts.Recorder,
	}
	for _, s := range srcs {
		bcfg.Sources = append(bcfg.Sources, Source{Tag: s.Name, Dir: s.Dir, Metadata: s.Metadata})
	}

	orch, err := New(bcfg, proc)
	if err != nil {
		return nil, err
	}
	return orch.Build(ctx, prev, inputs)
}

// NewTracker creates the change tracker for the configured site and the
// resolved sources.
func NewTracker(cfg *config.Config, srcs []sources.Source) *incremental.Tracker {
	scans := make([]incremental.ScanConfig, 0, len(srcs))
	for _, s := range srcs {
		scans = append(scans, incremental.ScanConfig{
			Source:   s.Name,
			Root:     s.Dir,
			Include:  s.Include,
			Exclude:  s.Exclude,
			Metadata: s.Metadata,
		})
	}
	return incremental.NewTracker(incremental.TrackerConfig{
		SiteDir:         cfg.Build.Root,
		Sources:         scans,
		PipelineVersion: cfg.Build.PipelineVersion,
		TrustModTime:    deref(cfg.Build.TrustModTime),
	})
}

// RetryPolicy builds the batch retry policy from configuration.
func RetryPolicy(cfg *config.Config) retry.Policy {
	maxRetries := -1
	if cfg.Retry.MaxRetries != nil {
		maxRetries = *cfg.Retry.MaxRetries
	}
	return retry.NewPolicy(retry.Mode(cfg.Retry.Mode), cfg.Retry.Initial, cfg.Retry.Max, maxRetries)
}

func deref(b *bool) bool {
	return b != nil && *b
}
