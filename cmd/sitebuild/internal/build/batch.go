package build

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/incremental"
	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/runner"
	"github.com/albertocavalcante/sitebuild/internal/errors"
	"github.com/albertocavalcante/sitebuild/internal/log"
)

// batch is a group of changed assets handed to one tool invocation.
type batch struct {
	id     int
	assets []*incremental.Entry
}

func (b *batch) paths() []string {
	paths := make([]string, len(b.assets))
	for i, a := range b.assets {
		paths[i] = a.Path
	}
	return paths
}

// planBatches splits the sorted changed assets into contiguous batches.
func planBatches(changed []*incremental.Entry, concurrency, batchSize int) []*batch {
	if len(changed) == 0 {
		return nil
	}
	size := batchSize
	if size <= 0 {
		size = (len(changed) + concurrency - 1) / concurrency
	}

	batches := make([]*batch, 0, (len(changed)+size-1)/size)
	for start := 0; start < len(changed); start += size {
		end := min(start+size, len(changed))
		batches = append(batches, &batch{
			id:     len(batches) + 1,
			assets: changed[start:end],
		})
	}
	return batches
}

// staged is the successful result of one tool invocation.
type staged struct {
	dir          string
	outDir       string
	outputs      map[string][]string // asset path -> site-relative outputs
	unattributed []string
}

func (s *staged) cleanup() {
	if s != nil {
		_ = os.RemoveAll(s.dir)
	}
}

// attempt stages the batch, runs the tool once and attributes its outputs.
func (o *Orchestrator) attempt(ctx context.Context, b *batch, attempt int) (*staged, error) {
	dir, err := os.MkdirTemp(o.cfg.WorkDir, fmt.Sprintf("sitebuild-batch-%d-*", b.id))
	if err != nil {
		return nil, errors.ProcessingError(b.id, fmt.Errorf("failed to create work directory: %w", err))
	}
	s := &staged{dir: dir, outDir: filepath.Join(dir, "out")}
	inDir := filepath.Join(dir, "in")

	ok := false
	defer func() {
		if !ok {
			s.cleanup()
		}
	}()

	if err := o.stage(b, inDir, s.outDir); err != nil {
		return nil, errors.ProcessingError(b.id, err).WithContext("attempt", attempt)
	}

	o.invocations.Add(1)
	o.cfg.Logger.Debug("running tool", log.Batch(b.id), log.Attempt(attempt), log.Count(len(b.assets)))
	if err := o.proc.Process(ctx, runner.Job{Batch: b.id, InDir: inDir, OutDir: s.outDir}); err != nil {
		return nil, errors.ProcessingError(b.id, err).WithContext("attempt", attempt)
	}

	files, err := listFiles(s.outDir)
	if err != nil {
		return nil, errors.ProcessingError(b.id, fmt.Errorf("failed to list outputs: %w", err)).WithContext("attempt", attempt)
	}
	s.outputs, s.unattributed = attribute(files, b.assets)

	ok = true
	return s, nil
}

// stage copies the batch's assets and the sidecar files of their sources
// into inDir and creates the empty outDir. The tool may rewrite its inputs,
// so source files are never linked.
func (o *Orchestrator) stage(b *batch, inDir, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tags := make(map[string]bool)
	for _, a := range b.assets {
		src, ok := o.sources[a.Source]
		if !ok {
			return fmt.Errorf("asset %s: unknown source %q", a.Path, a.Source)
		}
		from := filepath.Join(src.Dir, filepath.FromSlash(a.RelPath()))
		if err := copyFile(from, sitePath(inDir, a.Path)); err != nil {
			return fmt.Errorf("failed to stage %s: %w", a.Path, err)
		}
		tags[a.Source] = true
	}

	for tag := range tags {
		meta := o.sources[tag].Metadata
		if meta == "" || !fileExists(meta) {
			continue
		}
		dst := filepath.Join(inDir, tag, filepath.Base(meta))
		if err := copyFile(meta, dst); err != nil {
			return fmt.Errorf("failed to stage metadata for %s: %w", tag, err)
		}
	}
	return nil
}

// attribute assigns each output to the asset in the same directory whose
// file stem is the longest prefix of the output name followed by '.', '-'
// or the end of the name.
func attribute(outputs []string, assets []*incremental.Entry) (map[string][]string, []string) {
	byDir := make(map[string][]*incremental.Entry)
	for _, a := range assets {
		dir := path.Dir(a.Path)
		byDir[dir] = append(byDir[dir], a)
	}

	owned := make(map[string][]string)
	var unattributed []string
	for _, out := range outputs {
		dir, name := path.Dir(out), path.Base(out)
		var owner *incremental.Entry
		best := -1
		for _, a := range byDir[dir] {
			stem := path.Base(a.Stem())
			if ownsName(stem, name) && len(stem) > best {
				owner, best = a, len(stem)
			}
		}
		if owner == nil {
			unattributed = append(unattributed, out)
			continue
		}
		owned[owner.Path] = append(owned[owner.Path], out)
	}
	return owned, unattributed
}

func ownsName(stem, name string) bool {
	if stem == "" || !strings.HasPrefix(name, stem) {
		return false
	}
	if len(name) == len(stem) {
		return true
	}
	c := name[len(stem)]
	return c == '.' || c == '-'
}

// runBatch processes one batch with retries and hands the result to the
// collector. The tool runs on a context detached from cancellation so an
// invocation in flight always completes; ctx only stops further retries.
func (o *Orchestrator) runBatch(ctx context.Context, b *batch, col *collector) {
	logger := o.cfg.Logger.With(log.Batch(b.id))
	execCtx := context.WithoutCancel(ctx)

	var result *staged
	attempts, err := o.cfg.Retry.Do(ctx, func(attempt int) error {
		start := time.Now()
		s, err := o.attempt(execCtx, b, attempt)
		o.cfg.Recorder.ObserveBatchDuration(time.Since(start), err == nil)
		if err != nil {
			return err
		}
		result = s
		return nil
	}, func(retry int, err error) {
		o.cfg.Recorder.IncBatchRetry()
		logger.Warn("batch failed, retrying", log.Attempt(retry+1), log.Err(err))
	})
	defer result.cleanup()

	if err != nil {
		if ctx.Err() != nil && attempts <= o.cfg.Retry.MaxRetries {
			logger.Warn("batch abandoned after cancellation", log.Err(err))
			col.skip(b.assets)
			return
		}
		logger.Error("batch failed", log.Count(attempts), log.Err(err))
		col.failBatch(b, err)
		return
	}

	if attempts > 1 {
		logger.Info("batch succeeded after retry", log.Attempt(attempts))
	}
	col.commit(b, result)
}
