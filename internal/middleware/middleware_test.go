package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestSanitizePath(t *testing.T) {
	tests := map[string]string{
		"/healthz":                        "/healthz",
		"/metrics":                        "/metrics",
		"/api/v1/widgets":                 "/api/v1/widgets",
		"/api/v1/widgets/":                "/api/v1/widgets",
		"/api/v1/widgets/cpu":             "/api/v1/widgets/:name",
		"/api/v1/widgets/cpu/retry":       "/api/v1/widgets/:name/retry",
		"/api/v1/stream/widgets/memory":   "/api/v1/stream/widgets/:name",
		"/favicon.ico":                    "other",
		"/api/v1/something/else/entirely": "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizePath(in), in)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(zaptest.NewLogger(t), 1, 2)
	handler := rl.Limit("retry")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/widgets/cpu/retry", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusAccepted, do("10.0.0.1:1000"))
	assert.Equal(t, http.StatusAccepted, do("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1002"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusAccepted, do("10.0.0.2:1000"))

	assert.Equal(t, 0, rl.Cleanup(time.Hour))
	assert.Equal(t, 2, rl.Cleanup(-time.Second))
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecureHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
