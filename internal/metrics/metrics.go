package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	PipelineRuns       *prometheus.CounterVec
	ProviderDuration   *prometheus.HistogramVec
	StorageDuration    *prometheus.HistogramVec
	BestEffortFailures *prometheus.CounterVec
	RateLimited        prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = New()
		prometheus.MustRegister(
			global.PipelineRuns,
			global.ProviderDuration,
			global.StorageDuration,
			global.BestEffortFailures,
			global.RateLimited,
		)
	})
	return global
}

// New builds an unregistered set, for tests that need isolated counters.
func New() *Metrics {
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagegate",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline executions by terminal status",
		}, []string{"status"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imagegate",
			Name:      "provider_duration_seconds",
			Help:      "Image provider call latency",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"provider"}),
		StorageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imagegate",
			Name:      "storage_duration_seconds",
			Help:      "Storage backend write latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		BestEffortFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagegate",
			Name:      "best_effort_failures_total",
			Help:      "Swallowed persistence, event log and publish failures",
		}, []string{"op"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imagegate",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-caller rate limit",
		}),
	}
}
