// Package metrics records build observations. Components receive a Recorder;
// NoopRecorder is the default and PrometheusRecorder is used when the CLI is
// asked to export a metrics textfile (e.g. for a node_exporter collector on
// the CI runner).
package metrics

import "time"

// Outcome is the final status of a build.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Recorder defines observability hooks for builds and processing batches.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome Outcome)
	SetAssets(class string, n int)
	ObserveBatchDuration(d time.Duration, success bool)
	IncBatchRetry()
	SetConcurrency(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration)       {}
func (NoopRecorder) IncBuildOutcome(Outcome)                  {}
func (NoopRecorder) SetAssets(string, int)                    {}
func (NoopRecorder) ObserveBatchDuration(time.Duration, bool) {}
func (NoopRecorder) IncBatchRetry()                           {}
func (NoopRecorder) SetConcurrency(int)                       {}
