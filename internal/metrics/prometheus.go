package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for sparkwatch
var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparkwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sparkwatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)

	// Widget fetch metrics
	widgetFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparkwatch_widget_fetches_total",
			Help: "Total number of widget fetch attempts by classified outcome",
		},
		[]string{"widget", "outcome"},
	)

	widgetFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sparkwatch_widget_fetch_duration_seconds",
			Help:    "Duration of widget fetches including discovery",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"widget"},
	)

	widgetTicksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparkwatch_widget_ticks_dropped_total",
			Help: "Fetch attempts dropped because a fetch was already in flight",
		},
		[]string{"widget", "trigger"},
	)

	widgetState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sparkwatch_widget_state",
			Help: "Current widget state; 1 for the active state, 0 otherwise",
		},
		[]string{"widget", "state"},
	)

	// Discovery metrics
	discoveryLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparkwatch_discovery_lookups_total",
			Help: "Total number of service discovery lookups",
		},
		[]string{"mode", "result"},
	)

	// WebSocket metrics
	websocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparkwatch_websocket_connections_total",
			Help: "Total number of WebSocket connections",
		},
		[]string{"room"},
	)

	websocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sparkwatch_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"room"},
	)

	// Rate limiting metrics
	rateLimitedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparkwatch_rate_limited_requests_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"endpoint"},
	)
)

// RecordHTTPRequest records metrics for HTTP requests
func RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	labels := prometheus.Labels{
		"method":      method,
		"path":        path,
		"status_code": strconv.Itoa(statusCode),
	}

	httpRequestsTotal.With(labels).Inc()
	httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// RecordWidgetFetch records the classified outcome of a widget fetch
func RecordWidgetFetch(widget, outcome string, duration time.Duration) {
	widgetFetchesTotal.With(prometheus.Labels{"widget": widget, "outcome": outcome}).Inc()
	widgetFetchDuration.With(prometheus.Labels{"widget": widget}).Observe(duration.Seconds())
}

// RecordDroppedTick records a fetch attempt skipped by the single-flight guard
func RecordDroppedTick(widget, trigger string) {
	widgetTicksDroppedTotal.With(prometheus.Labels{"widget": widget, "trigger": trigger}).Inc()
}

// SetWidgetState marks current as the active state of widget among all states
func SetWidgetState(widget, current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		widgetState.With(prometheus.Labels{"widget": widget, "state": s}).Set(v)
	}
}

// RecordDiscoveryLookup records a service discovery lookup
func RecordDiscoveryLookup(mode, result string) {
	discoveryLookupsTotal.With(prometheus.Labels{"mode": mode, "result": result}).Inc()
}

// RecordWebSocketConnection records WebSocket connection metrics
func RecordWebSocketConnection(room string) {
	websocketConnectionsTotal.With(prometheus.Labels{"room": room}).Inc()
	websocketConnectionsActive.With(prometheus.Labels{"room": room}).Inc()
}

// RecordWebSocketDisconnection records WebSocket disconnection metrics
func RecordWebSocketDisconnection(room string) {
	websocketConnectionsActive.With(prometheus.Labels{"room": room}).Dec()
}

// RecordRateLimitedRequest records rate limiting metrics
func RecordRateLimitedRequest(endpoint string) {
	rateLimitedRequestsTotal.With(prometheus.Labels{"endpoint": endpoint}).Inc()
}
