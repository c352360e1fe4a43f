package api

import (
	"errors"
	"net/http"

	"github.com/aaronlmathis/sparkwatch/internal/dashboard"
	"github.com/aaronlmathis/sparkwatch/internal/sparkline"
	"github.com/aaronlmathis/sparkwatch/internal/units"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// widgetResponse is a snapshot plus its stats rendered in the widget's units
type widgetResponse struct {
	sparkline.Snapshot
	Display *displayStats `json:"display,omitempty"`
}

type displayStats struct {
	Median string `json:"median"`
	P95    string `json:"p95"`
	Latest string `json:"latest"`
	Limit  string `json:"limit"`
}

func present(snap sparkline.Snapshot) widgetResponse {
	resp := widgetResponse{Snapshot: snap}
	if snap.Stats != nil {
		kind := units.ParseKind(snap.Units)
		resp.Display = &displayStats{
			Median: units.Humanize(snap.Stats.Median, kind),
			P95:    units.Humanize(snap.Stats.P95, kind),
			Latest: units.Humanize(snap.Stats.Latest, kind),
			Limit:  units.HumanizePtr(snap.Limit, kind),
		}
	}
	return resp
}

// handleListWidgets handles GET /api/v1/widgets
// @Summary List widgets
// @Description Current snapshot of every configured widget, in configuration order.
// @Tags Widgets
// @Produce json
// @Success 200 {array} widgetResponse
// @Router /api/v1/widgets [get]
func (s *Server) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	snaps := s.dashboard.Snapshots()
	out := make([]widgetResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, present(snap))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"widgets": out})
}

// handleGetWidget handles GET /api/v1/widgets/{name}
// @Summary Get widget
// @Tags Widgets
// @Produce json
// @Param name path string true "Widget name"
// @Success 200 {object} widgetResponse
// @Failure 404 {object} map[string]string "Widget not found"
// @Router /api/v1/widgets/{name} [get]
func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	snap, err := s.dashboard.Snapshot(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "WIDGET_NOT_FOUND", "Widget not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, present(snap))
}

// handleRetryWidget handles POST /api/v1/widgets/{name}/retry
// @Summary Retry widget
// @Description Moves a timed out, empty or broken widget back to loading and fetches again.
// @Tags Widgets
// @Produce json
// @Param name path string true "Widget name"
// @Success 202 {object} widgetResponse
// @Failure 404 {object} map[string]string "Widget not found"
// @Failure 409 {object} map[string]string "Widget state does not accept a retry"
// @Failure 429 {object} map[string]string "Rate limit exceeded"
// @Router /api/v1/widgets/{name}/retry [post]
func (s *Server) handleRetryWidget(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.dashboard.Retry(name); err != nil {
		status, code := retryErrorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("Widget retry failed", zap.String("widget", name), zap.Error(err))
		}
		writeError(w, status, code, err.Error())
		return
	}

	s.logger.Info("Widget retry requested", zap.String("widget", name))

	snap, _ := s.dashboard.Snapshot(name)
	writeJSON(w, http.StatusAccepted, present(snap))
}

func retryErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, dashboard.ErrWidgetNotFound):
		return http.StatusNotFound, "WIDGET_NOT_FOUND"
	case errors.Is(err, sparkline.ErrUnavailable):
		return http.StatusConflict, "WIDGET_UNAVAILABLE"
	case errors.Is(err, sparkline.ErrNotRetryable):
		return http.StatusConflict, "NOT_RETRYABLE"
	case errors.Is(err, sparkline.ErrInFlight):
		return http.StatusConflict, "FETCH_IN_FLIGHT"
	case errors.Is(err, sparkline.ErrPinned):
		return http.StatusConflict, "WIDGET_PINNED"
	case errors.Is(err, sparkline.ErrNotStarted), errors.Is(err, sparkline.ErrStopped):
		return http.StatusServiceUnavailable, "NOT_RUNNING"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// handleWidgetStream upgrades to a WebSocket that receives the widget's
// current snapshot followed by every change.
func (s *Server) handleWidgetStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	snap, err := s.dashboard.Snapshot(name)
	if err != nil {
		http.Error(w, "Widget not found", http.StatusNotFound)
		return
	}

	s.wsHub.ServeWS(w, r, name, snapshotMessage, present(snap))
}
