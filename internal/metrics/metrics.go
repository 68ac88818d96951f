package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine request metrics.
var (
	EngineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "esgate",
			Name:      "engine_requests_total",
			Help:      "Total number of gateway operations against the search engine",
		},
		[]string{"op", "status"},
	)

	EngineRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "esgate",
			Name:      "engine_request_duration_seconds",
			Help:      "Gateway operation duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)

	CapabilityCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "esgate",
			Name:      "capability_cache_total",
			Help:      "Index capability cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Indexing job metrics.
var (
	RecordsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "esgate",
			Name:      "records_indexed_total",
			Help:      "Records written to the engine by indexing jobs",
		},
		[]string{"index"},
	)

	RecordsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "esgate",
			Name:      "records_failed_total",
			Help:      "Records that failed to be written by indexing jobs",
		},
		[]string{"index"},
	)

	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "esgate",
			Name:      "job_runs_total",
			Help:      "Indexing job runs by final status",
		},
		[]string{"status"},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "esgate",
			Name:      "job_duration_seconds",
			Help:      "Indexing job run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	JobsQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "esgate",
			Name:      "jobs_queued",
			Help:      "Jobs submitted to the dispatcher and not yet finished",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EngineRequestsTotal,
			EngineRequestDuration,
			CapabilityCacheTotal,
			RecordsIndexedTotal,
			RecordsFailedTotal,
			JobRunsTotal,
			JobDuration,
			JobsQueued,
		)
	})
}

// Status returns the status label for an operation outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
