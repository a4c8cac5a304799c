// Package metrics exposes TrendSpark's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestItems counts normalized posts ingested, labeled by source.
	IngestItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendspark_ingest_items_total",
		Help: "Number of posts ingested from platform sources",
	}, []string{"source"})

	// IngestCycles counts completed ingestion cycles.
	IngestCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trendspark_ingest_cycles_total",
		Help: "Number of completed ingestion cycles",
	})

	// AlertDeliveries counts outbound alert attempts by kind and outcome.
	AlertDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendspark_alert_delivery_total",
		Help: "Number of outbound alert deliveries",
	}, []string{"kind", "status"})

	// JobDuration observes handler execution time per job kind.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trendspark_job_duration_seconds",
		Help:    "Duration of scheduled job executions",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"job_kind"})

	// JobRuns counts job executions by kind and status.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendspark_job_runs_total",
		Help: "Number of scheduled job executions",
	}, []string{"job_kind", "status"})

	// LeaseSkips counts runs skipped because the concurrency limit was hit.
	LeaseSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendspark_lease_skips_total",
		Help: "Number of job triggers skipped due to an unavailable lease",
	}, []string{"job_kind"})

	// QueueBacklog tracks gauge-style backlog sizes (trending posts,
	// posts awaiting reply drafts).
	QueueBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trendspark_queue_backlog",
		Help: "Current backlog sizes by queue",
	}, []string{"queue"})

	// GenerationRequests counts chat-completion calls by outcome.
	GenerationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendspark_generation_requests_total",
		Help: "Number of reply/idea generation requests",
	}, []string{"status"})

	// GenerationTokens counts tokens reported by the model API.
	GenerationTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trendspark_generation_tokens_total",
		Help: "Total tokens consumed by generation requests",
	})

	// TrendFlips counts posts entering or leaving the trending state.
	TrendFlips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendspark_trend_flips_total",
		Help: "Number of trending status transitions",
	}, []string{"direction"})
)
