// Package metrics exposes Prometheus instrumentation for the SDK: calls to
// the platform, webhook server traffic, callbacks and token refreshes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Platform calls
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maplink_fetch_total",
			Help: "Total number of calls made to the Maplink platform",
		},
		[]string{"name", "method", "outcome"}, // outcome: success, failure, error
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maplink_fetch_duration_seconds",
			Help:    "Duration of calls to the Maplink platform in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name", "method"},
	)

	FetchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "maplink_fetches_in_flight",
			Help: "Calls to the Maplink platform currently in progress",
		},
	)

	// Webhook server
	ServerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maplink_server_requests_total",
			Help: "Total number of requests handled by the webhook server",
		},
		[]string{"method", "route", "status"},
	)

	ServerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maplink_server_request_duration_seconds",
			Help:    "Duration of webhook server requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)

	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maplink_callbacks_total",
			Help: "Total number of job callbacks received from the platform",
		},
		[]string{"type"},
	)

	CallbacksRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "maplink_callbacks_rejected_total",
			Help: "Callback payloads rejected by schema validation",
		},
	)

	// Monitor
	MonitorEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "maplink_monitor_events",
			Help: "Events currently retained by the monitor",
		},
	)

	MonitorSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "maplink_monitor_stream_subscribers",
			Help: "Open fetch-stream connections",
		},
	)

	// Auth
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maplink_token_refresh_total",
			Help: "Token acquisition attempts by result",
		},
		[]string{"result"}, // success, retry, failure, reused
	)
)

// RecordFetch records a completed platform call.
func RecordFetch(name, method, outcome string, d time.Duration) {
	if name == "" {
		name = "unnamed"
	}
	FetchTotal.WithLabelValues(name, method, outcome).Inc()
	FetchDuration.WithLabelValues(name, method).Observe(d.Seconds())
}

// RecordServerRequest records a webhook server request.
func RecordServerRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	ServerRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	ServerRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// callbackTypes are the callback types sent by the platform. The type
// comes from an unauthenticated request, so anything else is counted as
// "other" to keep the label set bounded.
var callbackTypes = map[string]bool{
	"STATUS_CHANGE": true,
	"PROGRESS":      true,
}

// RecordCallback records a received callback by type.
func RecordCallback(eventType string) {
	if !callbackTypes[eventType] {
		eventType = "other"
	}
	CallbacksTotal.WithLabelValues(eventType).Inc()
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
