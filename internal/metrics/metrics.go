// Package metrics exposes Prometheus instrumentation for the queue/task/
// worker lifecycle, the sweeper, the HTTP binding, and the websocket hub —
// carried from the teacher's promauto-based metric registration style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labtasker_tasks_created_total",
			Help: "Total number of tasks created",
		},
		[]string{"queue_id"},
	)

	TasksFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labtasker_tasks_fetched_total",
			Help: "Total number of tasks claimed by a fetch",
		},
		[]string{"queue_id"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labtasker_tasks_completed_total",
			Help: "Total number of tasks reported to a terminal status",
		},
		[]string{"queue_id", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labtasker_task_duration_seconds",
			Help:    "Elapsed time between a task's fetch and its terminal report",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"queue_id"},
	)

	TaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labtasker_task_retries_total",
			Help: "Total number of task retry transitions",
		},
		[]string{"queue_id"},
	)

	TaskTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labtasker_task_timeouts_total",
			Help: "Total number of tasks failed by the timeout sweeper",
		},
		[]string{"queue_id"},
	)

	// Queue metrics
	QueuePendingTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "labtasker_queue_pending_tasks",
			Help: "Current number of PENDING tasks observed per queue",
		},
		[]string{"queue_id"},
	)

	QueuesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labtasker_queues_active",
			Help: "Current number of registered queues",
		},
	)

	// Worker metrics
	ActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "labtasker_active_workers",
			Help: "Current number of ACTIVE workers per queue",
		},
		[]string{"queue_id"},
	)

	WorkerCrashes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labtasker_worker_crashes_total",
			Help: "Total number of workers transitioned to CRASHED",
		},
		[]string{"queue_id"},
	)

	// Sweeper metrics
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "labtasker_sweep_duration_seconds",
			Help:    "Duration of each timeout sweep pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labtasker_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labtasker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Event fan-out metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labtasker_events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"type"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labtasker_websocket_connections",
			Help: "Current number of WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labtasker_websocket_messages_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)
)

// RecordTaskCreated records a task creation.
func RecordTaskCreated(queueID string) {
	TasksCreated.WithLabelValues(queueID).Inc()
}

// RecordTaskFetched records a successful fetch claim.
func RecordTaskFetched(queueID string) {
	TasksFetched.WithLabelValues(queueID).Inc()
}

// RecordTaskCompletion records a terminal status report and its duration.
func RecordTaskCompletion(queueID, status string, durationSeconds float64) {
	TasksCompleted.WithLabelValues(queueID, status).Inc()
	TaskDuration.WithLabelValues(queueID).Observe(durationSeconds)
}

// RecordTaskRetry records a retry transition.
func RecordTaskRetry(queueID string) {
	TaskRetries.WithLabelValues(queueID).Inc()
}

// RecordTaskTimeout records a sweeper-triggered failure.
func RecordTaskTimeout(queueID string) {
	TaskTimeouts.WithLabelValues(queueID).Inc()
}

// SetQueuePendingTasks sets the observed PENDING task count for a queue.
func SetQueuePendingTasks(queueID string, count float64) {
	QueuePendingTasks.WithLabelValues(queueID).Set(count)
}

// SetActiveWorkers sets the ACTIVE worker count for a queue.
func SetActiveWorkers(queueID string, count float64) {
	ActiveWorkers.WithLabelValues(queueID).Set(count)
}

// RecordWorkerCrash records a worker transitioning to CRASHED.
func RecordWorkerCrash(queueID string) {
	WorkerCrashes.WithLabelValues(queueID).Inc()
}

// RecordSweepDuration records how long a sweep pass took.
func RecordSweepDuration(durationSeconds float64) {
	SweepDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordEventPublished records a lifecycle event fan-out.
func RecordEventPublished(eventType string) {
	EventsPublished.WithLabelValues(eventType).Inc()
}

// SetWebSocketConnections sets the WebSocket connections gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a WebSocket message.
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}
