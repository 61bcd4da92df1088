package api

import (
	"errors"
	"net/http"

	"github.com/repsync-io/repsync/internal/projection"
)

// handleListExercises returns the exercise catalog, optionally filtered by
// muscle category.
//
// GET /api/v1/exercises?muscle_category=
func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	muscleCategory := r.URL.Query().Get("muscle_category")

	exercises, err := s.deps.Catalog.ListExercises(r.Context(), muscleCategory)
	if err != nil {
		s.writeProjectionError(w, r, err, "Failed to list exercises")

		return
	}

	s.writeJSON(w, r, http.StatusOK, toExerciseResponses(exercises))
}

// handleLastExerciseSets returns the sets of the exercise from the user's most
// recent workout containing it. Clients use this to pre-fill the next session
// with last time's numbers.
//
// GET /api/v1/exercises/{id}/last-sets
//
// Response codes:
//   - 200 OK: sets from the latest workout containing the exercise
//   - 404 Not Found: the user has never performed the exercise
func (s *Server) handleLastExerciseSets(w http.ResponseWriter, r *http.Request) {
	exerciseID, ok := s.uuidPathValue(w, r, "id")
	if !ok {
		return
	}

	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	sets, err := s.deps.Workouts.LastExerciseSets(r.Context(), userID, exerciseID)
	if err != nil {
		if errors.Is(err, projection.ErrExerciseNeverPerformed) {
			WriteErrorResponse(w, r, s.logger, NotFound("Exercise has never been performed by this user"))

			return
		}

		s.writeProjectionError(w, r, err, "Failed to load last sets")

		return
	}

	s.writeJSON(w, r, http.StatusOK, toSetResponses(sets))
}
