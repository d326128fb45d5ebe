package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_runs_started_total",
		Help: "Total number of sync runs started",
	})

	SyncRunsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_finished_total",
		Help: "Total number of sync runs finished",
	}, []string{"status"})

	SyncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_run_duration_seconds",
		Help:    "Duration of completed sync runs",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
	})

	ProductsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_products_processed_total",
		Help: "Total number of source products processed, by outcome",
	}, []string{"outcome"})

	VariantsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_variants_processed_total",
		Help: "Total number of variant cells carried through a diff",
	})

	MissingCombinationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_missing_combinations_total",
		Help: "Total number of variant cells with no source SKU",
	})

	SyncErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_errors_total",
		Help: "Total number of recorded sync errors, by kind",
	}, []string{"kind"})

	ExternalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "external_request_duration_seconds",
		Help:    "Latency of external catalog API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"api", "method"})

	ExternalRequestRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "external_request_retries_total",
		Help: "Total number of retried external API requests",
	}, []string{"api"})

	RateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limiter permit",
		Buckets: prometheus.DefBuckets,
	}, []string{"api"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
