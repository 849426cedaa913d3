package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveBuildDuration(1500 * time.Millisecond)
	pr.IncBuildOutcome(OutcomePartial)
	pr.SetAssets("changed", 4)
	pr.SetAssets("unchanged", 10)
	pr.ObserveBatchDuration(200*time.Millisecond, true)
	pr.ObserveBatchDuration(300*time.Millisecond, false)
	pr.IncBatchRetry()
	pr.SetConcurrency(8)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	assert.InDelta(t, 4, value(t, mfs, "sitebuild_assets", "class", "changed"), 0)
	assert.InDelta(t, 1, value(t, mfs, "sitebuild_batch_results_total", "result", "failed"), 0)
	assert.InDelta(t, 1, value(t, mfs, "sitebuild_batch_retries_total", "", ""), 0)
	assert.InDelta(t, 8, value(t, mfs, "sitebuild_concurrency", "", ""), 0)
	assert.InDelta(t, 1, value(t, mfs, "sitebuild_build_outcomes_total", "outcome", "partial"), 0)
}

// value returns the gauge or counter value of the named metric, optionally
// selecting the sample whose label matches.
func value(t *testing.T, mfs []*dto.MetricFamily, name, label, want string) float64 {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label != "" && !hasLabel(m, label, want) {
				continue
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, want)
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.SetAssets("changed", 2)

	path := filepath.Join(t.TempDir(), "sitebuild.prom")
	require.NoError(t, pr.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `sitebuild_assets{class="changed"} 2`), string(data))
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveBuildDuration(time.Second)
	pr.IncBuildOutcome(OutcomeFailed)
	pr.SetAssets("changed", 1)
	pr.ObserveBatchDuration(time.Second, true)
	pr.IncBatchRetry()
	pr.SetConcurrency(1)
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncBuildOutcome(OutcomeSuccess)
}
