package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestCounter counts HTTP requests by status code, method, and path
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"status", "method", "path"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiz_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status", "method", "path"},
	)

	// DatabaseOperationDuration measures database operation duration
	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiz_db_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_rooms_created_total",
			Help: "Total number of rooms created",
		},
		[]string{"category"},
	)

	// JoinAttempts counts joinRoom calls by outcome ("joined", "rejoined", "refused")
	JoinAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_join_attempts_total",
			Help: "Total number of room join attempts",
		},
		[]string{"outcome"},
	)

	AnswersScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_total",
			Help: "Total number of scored answers",
		},
		[]string{"correct"},
	)

	GamesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_games_finished_total",
			Help: "Total number of rooms reaching a terminal status",
		},
		[]string{"status"},
	)

	// BroadcastFailures counts realtime events that could not be delivered
	BroadcastFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_broadcast_failures_total",
			Help: "Total number of realtime events dropped or failed to publish",
		},
		[]string{"event", "reason"},
	)

	// ConnectedClients tracks open WebSocket connections
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiz_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)
)

// RecordDBOperation records the duration of a database operation
func RecordDBOperation(operation string, table string, startTime time.Time) {
	duration := time.Since(startTime).Seconds()
	DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration)
}
