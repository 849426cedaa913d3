package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitebuild"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry       *prom.Registry
	buildDuration  prom.Histogram
	buildOutcome   *prom.CounterVec
	assets         *prom.GaugeVec
	batchDuration  *prom.HistogramVec
	batchResults   *prom.CounterVec
	batchRetries   prom.Counter
	workerPoolSize prom.Gauge
}

// NewPrometheusRecorder constructs and registers the build metrics on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		assets: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "assets",
			Help:      "Assets in the last build by classification (changed, unchanged, removed, failed)",
		}, []string{"class"}),
		batchDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of processing batches including retries",
			Buckets:   prom.ExponentialBuckets(0.1, 2, 14),
		}, []string{"result"}),
		batchResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "batch_results_total",
			Help:      "Processing batches by result",
		}, []string{"result"}),
		batchRetries: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "batch_retries_total",
			Help:      "Retries of failed processing batches",
		}),
		workerPoolSize: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "concurrency",
			Help:      "Worker pool size of the last build",
		}),
	}
	reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.assets, pr.batchDuration,
		pr.batchResults, pr.batchRetries, pr.workerPoolSize)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome Outcome) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetAssets(class string, n int) {
	if p == nil {
		return
	}
	p.assets.WithLabelValues(class).Set(float64(n))
}

func (p *PrometheusRecorder) ObserveBatchDuration(d time.Duration, success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.batchDuration.WithLabelValues(res).Observe(d.Seconds())
	p.batchResults.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncBatchRetry() {
	if p == nil {
		return
	}
	p.batchRetries.Inc()
}

func (p *PrometheusRecorder) SetConcurrency(n int) {
	if p == nil {
		return
	}
	p.workerPoolSize.Set(float64(n))
}

// WriteTextfile writes the current metric values in the Prometheus text
// exposition format. The file is written atomically.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
