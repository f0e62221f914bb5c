package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// DB query latency (seconds)
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	// Missed days written back by reconciliation
	ReconcileMissedDays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habit_reconcile_missed_days_total",
			Help: "Total number of calendar days recorded as missed by reconciliation",
		},
	)

	ReconcileFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_reconcile_failures_total",
			Help: "Reconciliation write-backs that did not persist",
		},
		[]string{"reason"}, // reason: conflict, locked, store_error
	)

	HabitCompletions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habit_completions_total",
			Help: "Total number of habit completions recorded",
		},
	)

	HabitLifecycle = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_lifecycle_total",
			Help: "Habits created and deleted",
		},
		[]string{"action"}, // action: created, deleted
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_events_published_total",
			Help: "Habit events handed to the message broker",
		},
		[]string{"routing_key", "status"}, // status: success, failed
	)

	// Active storage backend, 1 for the selected driver
	StorageBackend = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habit_storage_backend",
			Help: "Storage backend selected at startup",
		},
		[]string{"driver"},
	)
)

// RecordHTTPRequestDuration records one HTTP request.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordDBQueryDuration records one repository call.
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery counts a slow query.
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// AddReconciledMissedDays counts missed days that reached the store.
func AddReconciledMissedDays(n int) {
	ReconcileMissedDays.Add(float64(n))
}

// IncrementReconcileFailure counts a write-back that was skipped or failed.
func IncrementReconcileFailure(reason string) {
	ReconcileFailures.WithLabelValues(reason).Inc()
}

// IncrementCompletion counts a successful completion.
func IncrementCompletion() {
	HabitCompletions.Inc()
}

// IncrementHabitLifecycle counts a create or delete.
func IncrementHabitLifecycle(action string) {
	HabitLifecycle.WithLabelValues(action).Inc()
}

// IncrementEventPublished counts a broker publish attempt.
func IncrementEventPublished(routingKey, status string) {
	EventsPublished.WithLabelValues(routingKey, status).Inc()
}

// SetStorageBackend marks driver as the active backend.
func SetStorageBackend(driver string) {
	StorageBackend.Reset()
	StorageBackend.WithLabelValues(driver).Set(1)
}
