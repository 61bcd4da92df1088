package api

import (
	"errors"
	"net/http"

	"github.com/repsync-io/repsync/internal/metrics"
)

// handleWeeklyMetrics returns the user's metrics for one Monday-anchored week,
// calculating them on demand when no stored row exists.
//
// GET /api/v1/metrics/weekly?week_start=YYYY-MM-DD
//
// week_start may be any day of the wanted week; it is normalized to Monday.
// Missing week_start defaults to the current week.
func (s *Server) handleWeeklyMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	weekStart, ok := s.weekStartParam(w, r)
	if !ok {
		return
	}

	m, err := s.deps.Metrics.GetWeek(r.Context(), userID, weekStart)
	if errors.Is(err, metrics.ErrMetricsNotFound) {
		m, err = s.deps.Metrics.CalculateWeek(r.Context(), userID, weekStart)
	}

	if err != nil {
		s.writeProjectionError(w, r, err, "Failed to load weekly metrics")

		return
	}

	s.writeJSON(w, r, http.StatusOK, toMetricsResponse(m))
}

// handleRebuildWeeklyMetrics recalculates every stored week for the user from
// the current projections.
//
// POST /api/v1/metrics/weekly/rebuild?user_id=<id>
func (s *Server) handleRebuildWeeklyMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	if err := s.deps.Metrics.RebuildForUser(r.Context(), userID); err != nil {
		s.writeProjectionError(w, r, err, "Failed to rebuild weekly metrics")

		return
	}

	s.writeJSON(w, r, http.StatusOK, MessageResponse{Message: "Weekly metrics rebuilt successfully"})
}
