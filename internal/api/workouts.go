package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/repsync-io/repsync/internal/api/middleware"
	"github.com/repsync-io/repsync/internal/projection"
)

// handleListWorkouts returns the user's workouts, newest first, with set
// counts, volume and the exercises performed.
//
// GET /api/v1/workouts
func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	summaries, err := s.deps.Workouts.ListWorkouts(r.Context(), userID)
	if err != nil {
		s.writeProjectionError(w, r, err, "Failed to list workouts")

		return
	}

	responses := make([]WorkoutResponse, 0, len(summaries))
	for _, summary := range summaries {
		responses = append(responses, toWorkoutResponse(summary))
	}

	s.writeJSON(w, r, http.StatusOK, responses)
}

// handleListWorkoutSets returns the sets of one workout.
//
// GET /api/v1/workouts/{id}/sets
//
// Response codes:
//   - 200 OK: sets ordered by completed_at ascending
//   - 403 Forbidden: workout belongs to another user
//   - 404 Not Found: workout id is not in the projection
func (s *Server) handleListWorkoutSets(w http.ResponseWriter, r *http.Request) {
	workoutID, ok := s.uuidPathValue(w, r, "id")
	if !ok {
		return
	}

	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	workout, err := s.deps.Workouts.GetWorkout(r.Context(), workoutID)
	if err != nil {
		if errors.Is(err, projection.ErrWorkoutNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("Workout not found"))

			return
		}

		s.writeProjectionError(w, r, err, "Failed to load workout")

		return
	}

	if workout.UserID != userID {
		WriteErrorResponse(w, r, s.logger, Forbidden("Workout belongs to another user"))

		return
	}

	sets, err := s.deps.Workouts.ListSets(r.Context(), workoutID)
	if err != nil {
		s.writeProjectionError(w, r, err, "Failed to list sets")

		return
	}

	s.writeJSON(w, r, http.StatusOK, toSetResponses(sets))
}

// handleBatchWorkoutSets returns sets for many workouts in one request.
//
// GET /api/v1/workouts/sets/batch?workout_ids=<id>,<id>,...&user_id=<id>
//
// Ownership is checked with a single batched query. If any requested workout
// is unknown or belongs to another user the whole request is rejected with
// 403: a client must not learn anything about foreign workouts, not even
// whether they exist.
func (s *Server) handleBatchWorkoutSets(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requestUserID(w, r)
	if !ok {
		return
	}

	workoutIDs, ok := s.workoutIDsParam(w, r)
	if !ok {
		return
	}

	owned, err := s.deps.Workouts.WorkoutsByIDs(r.Context(), userID, workoutIDs)
	if err != nil {
		s.writeProjectionError(w, r, err, "Failed to load workouts")

		return
	}

	if len(owned) != len(workoutIDs) {
		WriteErrorResponse(w, r, s.logger, Forbidden("One or more workouts are unknown or belong to another user"))

		return
	}

	setsByWorkout, err := s.deps.Workouts.ListSetsBatch(r.Context(), workoutIDs)
	if err != nil {
		s.writeProjectionError(w, r, err, "Failed to list sets")

		return
	}

	resp := BatchSetsResponse{SetsByWorkout: make(map[uuid.UUID][]SetResponse, len(setsByWorkout))}
	for workoutID, sets := range setsByWorkout {
		resp.SetsByWorkout[workoutID] = toSetResponses(sets)
	}

	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) writeProjectionError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	s.logger.Error(fallback,
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("error", err.Error()),
	)

	WriteErrorResponse(w, r, s.logger, InternalServerError(fallback))
}
