package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aaronlmathis/sparkwatch/internal/config"
	"github.com/aaronlmathis/sparkwatch/internal/dashboard"
	mw "github.com/aaronlmathis/sparkwatch/internal/middleware"
	"github.com/aaronlmathis/sparkwatch/internal/sparkline"
	"github.com/aaronlmathis/sparkwatch/internal/version"
	"github.com/aaronlmathis/sparkwatch/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// retryBurst is how many retries a client may send back to back
	retryBurst = 5

	snapshotMessage = "snapshot"
)

// Server represents the API server
type Server struct {
	logger      *zap.Logger
	config      *config.Config
	router      chi.Router
	dashboard   *dashboard.Dashboard
	wsHub       *ws.Hub
	limiter     *mw.RateLimiter
	ready       atomic.Bool
	unsubscribe func()
}

// NewServer creates a new API server
func NewServer(logger *zap.Logger, cfg *config.Config, dash *dashboard.Dashboard) *Server {
	s := &Server{
		logger:    logger,
		config:    cfg,
		router:    chi.NewRouter(),
		dashboard: dash,
		wsHub:     ws.NewHub(logger),
		limiter:   mw.NewRateLimiter(logger, cfg.RateLimits.RetriesPerMinute, retryBurst),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Start starts the server components: the WebSocket hub, the snapshot fan-out
// and the widgets themselves.
func (s *Server) Start(ctx context.Context) error {
	go s.wsHub.Run()

	s.unsubscribe = s.dashboard.Subscribe(func(snap sparkline.Snapshot) {
		s.wsHub.BroadcastToRoom(snap.Name, snapshotMessage, present(snap))
	})

	if err := s.dashboard.Start(ctx); err != nil {
		return err
	}

	go s.cleanupLimiters(ctx)

	s.ready.Store(true)
	return nil
}

// Stop stops the server components
func (s *Server) Stop() {
	s.logger.Info("Stopping server components")
	s.ready.Store(false)

	s.dashboard.Stop()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	s.wsHub.Stop()
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.RequestIDResponseMiddleware)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.PrometheusMiddleware)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.SecureHeaders)

	// CORS middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	// Version endpoint
	s.router.Get("/version", s.handleVersion)

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/widgets", s.handleListWidgets)
			r.Get("/widgets/{name}", s.handleGetWidget)
		})

		r.With(s.limiter.Limit("retry")).Post("/widgets/{name}/retry", s.handleRetryWidget)

		// WebSocket endpoints
		r.Get("/stream/widgets/{name}", s.handleWidgetStream)
	})
}

// requestLogger logs each request through zap once it completes
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) cleanupLimiters(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.limiter.Cleanup(10 * time.Minute); removed > 0 {
				s.logger.Debug("Removed idle rate limiters", zap.Int("count", removed))
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
