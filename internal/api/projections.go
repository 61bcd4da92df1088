package api

import (
	"log/slog"
	"net/http"

	"github.com/repsync-io/repsync/internal/api/middleware"
)

// handleRebuildProjections drops and replays all projections from the event
// log, then recalculates weekly metrics for every user with workouts.
//
// POST /api/v1/projections/rebuild
//
// Rebuilding is idempotent; running it twice yields identical rows. The call
// blocks until the rebuild transaction commits.
func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	s.logger.Info("projection rebuild requested",
		slog.String("correlation_id", correlationID),
	)

	if err := s.deps.Rebuilder.Rebuild(r.Context()); err != nil {
		s.logger.Error("projection rebuild failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to rebuild projections"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, MessageResponse{Message: "Projections rebuilt successfully"})
}
