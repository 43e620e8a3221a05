// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExternalCalls counts finished external service calls by operation and outcome.
	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexplain_external_calls_total",
			Help: "External service calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	// ExternalRetries counts retry attempts after a failed or timed out call.
	ExternalRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexplain_external_retries_total",
			Help: "Retried external service attempts by operation",
		},
		[]string{"op"},
	)

	// Fallbacks counts deterministic substitutions by component.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexplain_fallbacks_total",
			Help: "Fallback substitutions by component",
		},
		[]string{"component"},
	)

	// CacheLookups counts translation cache lookups by result.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexplain_cache_lookups_total",
			Help: "Translation cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	// PipelineDuration tracks full document analysis time.
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexplain_pipeline_duration_seconds",
			Help:    "Document analysis time in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"},
	)

	// StageDuration tracks the time spent in each pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexplain_stage_duration_seconds",
			Help:    "Time spent per analysis stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// JobsInFlight tracks running asynchronous analysis jobs.
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lexplain_jobs_in_flight",
			Help: "Asynchronous analysis jobs currently running",
		},
	)
)
