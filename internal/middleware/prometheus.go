package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/aaronlmathis/sparkwatch/internal/metrics"
	"github.com/go-chi/chi/v5/middleware"
)

// PrometheusMiddleware records HTTP request metrics for Prometheus
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		statusCode := ww.Status()
		if statusCode == 0 {
			// hijacked connections never write a status
			statusCode = http.StatusSwitchingProtocols
		}
		metrics.RecordHTTPRequest(r.Method, sanitizePath(r.URL.Path), statusCode, time.Since(start))
	})
}

// RequestIDResponseMiddleware adds the request ID to response headers
func RequestIDResponseMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// sanitizePath normalizes URL paths for metrics to prevent cardinality explosion
func sanitizePath(path string) string {
	path = strings.TrimSuffix(path, "/")

	switch path {
	case "/healthz", "/readyz", "/version", "/metrics", "/api/v1/widgets":
		return path
	}

	parts := strings.Split(path, "/")
	if len(parts) < 5 || parts[1] != "api" || parts[2] != "v1" {
		return "other"
	}

	switch parts[3] {
	case "widgets":
		// /api/v1/widgets/{name}[/{action}]
		if len(parts) == 5 {
			return "/api/v1/widgets/:name"
		}
		if len(parts) == 6 {
			return "/api/v1/widgets/:name/" + parts[5]
		}
	case "stream":
		// /api/v1/stream/widgets/{name}
		if len(parts) == 6 && parts[4] == "widgets" {
			return "/api/v1/stream/widgets/:name"
		}
	}

	return "other"
}
