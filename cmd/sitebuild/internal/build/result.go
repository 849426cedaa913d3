package build

import (
	"fmt"
	"io"
	"time"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/incremental"
	"github.com/albertocavalcante/sitebuild/internal/metrics"
)

// Artifact describes one file in the built site.
type Artifact struct {
	Asset string `json:"asset"` // owning asset path
	Size  int64  `json:"size"`
	Fresh bool   `json:"fresh"` // produced by this build rather than carried over
}

// Output maps site-relative artifact paths to their metadata.
type Output map[string]Artifact

// Warning is a recoverable problem reported at the end of a build.
type Warning struct {
	Batch   int    `json:"batch,omitempty"`
	Asset   string `json:"asset,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	s := w.Message
	if w.Asset != "" {
		s = w.Asset + ": " + s
	} else if w.Path != "" {
		s = w.Path + ": " + s
	}
	if w.Batch > 0 {
		s = fmt.Sprintf("batch %d: %s", w.Batch, s)
	}
	return s
}

// Result is the outcome of a build.
type Result struct {
	Output   Output                 `json:"-"`
	Manifest *incremental.Manifest  `json:"-"`
	Changes  *incremental.ChangeSet `json:"changes"`

	Processed []string `json:"processed"` // assets successfully reprocessed
	Failed    []string `json:"failed"`    // assets excluded after permanent failure
	Skipped   []string `json:"skipped"`   // assets never dispatched (cancellation)
	Modified  []string `json:"modified_files"`

	Warnings        []Warning `json:"warnings"`
	Batches         int       `json:"batches"`
	FailedBatches   int       `json:"failed_batches"`
	ToolInvocations int       `json:"tool_invocations"`

	DryRun   bool            `json:"dry_run"`
	Outcome  metrics.Outcome `json:"outcome"`
	Duration time.Duration   `json:"duration"`
}

// Summary condenses a Result into counters.
type Summary struct {
	Assets          int             `json:"assets"`
	Changed         int             `json:"changed"`
	Unchanged       int             `json:"unchanged"`
	Removed         int             `json:"removed"`
	Processed       int             `json:"processed"`
	Failed          int             `json:"failed"`
	Skipped         int             `json:"skipped"`
	Artifacts       int             `json:"artifacts"`
	Batches         int             `json:"batches"`
	FailedBatches   int             `json:"failed_batches"`
	ToolInvocations int             `json:"tool_invocations"`
	Warnings        int             `json:"warnings"`
	Outcome         metrics.Outcome `json:"outcome"`
	DryRun          bool            `json:"dry_run"`
	DurationSeconds float64         `json:"duration_seconds"`
}

// Summary returns the counters of the result.
func (r *Result) Summary() Summary {
	s := Summary{
		Processed:       len(r.Processed),
		Failed:          len(r.Failed),
		Skipped:         len(r.Skipped),
		Artifacts:       len(r.Output),
		Batches:         r.Batches,
		FailedBatches:   r.FailedBatches,
		ToolInvocations: r.ToolInvocations,
		Warnings:        len(r.Warnings),
		Outcome:         r.Outcome,
		DryRun:          r.DryRun,
		DurationSeconds: r.Duration.Seconds(),
	}
	if r.Changes != nil {
		s.Changed = len(r.Changes.Added) + len(r.Changes.Modified)
		s.Unchanged = len(r.Changes.Unchanged)
		s.Removed = len(r.Changes.Removed)
		s.Assets = s.Changed + s.Unchanged
	}
	return s
}

// Print writes a human-readable report of the result.
func (r *Result) Print(w io.Writer) {
	s := r.Summary()
	if s.DryRun {
		_, _ = fmt.Fprintf(w, "Dry run: %d changed, %d unchanged, %d removed in %d batches\n",
			s.Changed, s.Unchanged, s.Removed, s.Batches)
		return
	}
	_, _ = fmt.Fprintf(w, "Build %s in %s\n", s.Outcome, r.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  assets:    %d (%d changed, %d unchanged, %d removed)\n",
		s.Assets, s.Changed, s.Unchanged, s.Removed)
	_, _ = fmt.Fprintf(w, "  processed: %d in %d batches (%d failed)\n", s.Processed, s.Batches, s.FailedBatches)
	if s.Failed > 0 {
		_, _ = fmt.Fprintf(w, "  failed:    %d\n", s.Failed)
	}
	if s.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "  skipped:   %d\n", s.Skipped)
	}
	_, _ = fmt.Fprintf(w, "  artifacts: %d\n", s.Artifacts)
	if len(r.Warnings) > 0 {
		_, _ = fmt.Fprintf(w, "Warnings (%d):\n", len(r.Warnings))
		for _, warn := range r.Warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", warn)
		}
	}
}
