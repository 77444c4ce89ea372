// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal tracks completed chat turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total chat turns executed",
		},
		[]string{"outcome"},
	)

	// ModelCallDuration tracks model invocation duration.
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_call_duration_seconds",
			Help:    "Model invocation duration in seconds",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"provider", "status"},
	)

	// MQTTPublishesTotal tracks MQTT publish attempts by outcome.
	MQTTPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_publishes_total",
			Help: "Total MQTT publish attempts",
		},
		[]string{"outcome"},
	)

	// PresenceConnectionsActive tracks active presence stream connections.
	PresenceConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_connections_active",
			Help: "Number of active presence stream connections",
		},
	)

	// PresenceViewers tracks tracked viewers per session.
	PresenceViewers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "presence_viewers",
			Help: "Tracked viewers per session",
		},
		[]string{"session_id"},
	)

	// SessionsTotal tracks session lifecycle transitions.
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_total",
			Help: "Session lifecycle transitions",
		},
		[]string{"action"},
	)

	// MessagesTotal tracks persisted message rows.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total persisted message rows",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordModelCall records a model invocation.
func RecordModelCall(provider, status string, seconds float64) {
	ModelCallDuration.WithLabelValues(provider, status).Observe(seconds)
}

// RecordMQTTPublish records an MQTT publish attempt.
func RecordMQTTPublish(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	MQTTPublishesTotal.WithLabelValues(outcome).Inc()
}
