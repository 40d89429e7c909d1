package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessedTotal tracks terminal job outcomes by type
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docforge_jobs_processed_total",
			Help: "Total number of jobs reaching a terminal state",
		},
		[]string{"type", "status"},
	)

	// JobRetriesTotal tracks retry bounces back to pending
	JobRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docforge_job_retries_total",
			Help: "Total number of job retries",
		},
	)

	// JobDuration tracks handler execution time
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docforge_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// QueueDepth tracks the number of jobs held by the queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docforge_queue_depth",
			Help: "Number of jobs currently held by the queue",
		},
	)

	// JobsInFlight tracks currently dispatched jobs
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docforge_jobs_in_flight",
			Help: "Number of jobs currently being processed",
		},
	)

	// ErrorsClassifiedTotal tracks classified failures by taxonomy code
	ErrorsClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docforge_errors_classified_total",
			Help: "Total number of classified handler failures",
		},
		[]string{"code", "type"},
	)

	// BreakerOpen tracks circuit breaker state per category (1 = open)
	BreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docforge_breaker_open",
			Help: "Whether the circuit breaker for a category is open",
		},
		[]string{"category"},
	)

	// RecoveriesTotal tracks recovery attempts by strategy and outcome
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docforge_recoveries_total",
			Help: "Total number of recovery attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// StrategySwitchesTotal tracks adaptive scheduler strategy changes
	StrategySwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docforge_strategy_switches_total",
			Help: "Total number of scheduling strategy switches",
		},
		[]string{"strategy"},
	)
)
