// Package metrics — Prometheus-инструменты сервиса сообщений. Отдаются на GET /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Messages persisted by send, one per recipient",
		},
		[]string{"sensitive"},
	)

	ThreadsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_threads_created_total",
			Help: "Threads created",
		},
		[]string{"path"}, // "explicit", "direct"
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_realtime_events_total",
			Help: "Realtime events handed to connected clients",
		},
		[]string{"event"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_ws_connections",
			Help: "Open websocket connections",
		},
	)

	StoreCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_store_call_duration_seconds",
			Help:    "Duration of store calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	// 0 = closed, 1 = half-open, 2 = open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "messaging_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// ObserveStoreCall — для defer в начале вызова хранилища.
func ObserveStoreCall(op string, start time.Time) {
	StoreCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func RecordMessageSent(sensitive bool) {
	MessagesSent.WithLabelValues(strconv.FormatBool(sensitive)).Inc()
}

func RecordHTTPRequest(method string, status int) {
	HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
