package projection

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors for projection lookups.
var (
	// ErrWorkoutNotFound indicates the workout id is not in the projection.
	ErrWorkoutNotFound = errors.New("workout not found")

	// ErrExerciseNeverPerformed indicates the user has no workout containing
	// the exercise.
	ErrExerciseNeverPerformed = errors.New("exercise never performed")
)

type (
	// Rebuilder replays the full event log into fresh projections.
	//
	// Rebuild truncates sets then workouts, replays every event in
	// (device_id, sequence_number) order with the same semantics as the
	// incremental updater, and recalculates weekly metrics for every user
	// with workouts. Rebuilding twice yields identical rows.
	Rebuilder interface {
		Rebuild(ctx context.Context) error
	}

	// Store serves queries over the projected read models.
	Store interface {
		// ListWorkouts returns the user's workouts newest-first, each with
		// set counts, volume and the exercises performed. Implementations
		// batch the auxiliary lookups instead of querying per workout.
		ListWorkouts(ctx context.Context, userID uuid.UUID) ([]*WorkoutSummary, error)

		// GetWorkout returns a single projected workout or ErrWorkoutNotFound.
		GetWorkout(ctx context.Context, workoutID uuid.UUID) (*Workout, error)

		// WorkoutsByIDs returns the workouts from the given ids that belong to
		// the user, in one query. Unknown and foreign ids are simply absent
		// from the result; callers compare lengths to detect them.
		WorkoutsByIDs(ctx context.Context, userID uuid.UUID, workoutIDs []uuid.UUID) ([]*Workout, error)

		// ListSets returns the workout's sets ordered by completed_at ascending.
		ListSets(ctx context.Context, workoutID uuid.UUID) ([]*Set, error)

		// ListSetsBatch returns sets for many workouts in one query, keyed by
		// workout id. Unknown workout ids are simply absent from the map.
		ListSetsBatch(ctx context.Context, workoutIDs []uuid.UUID) (map[uuid.UUID][]*Set, error)

		// LastExerciseSets returns the sets of the exercise from the most
		// recent workout of the user that contains it, or
		// ErrExerciseNeverPerformed.
		LastExerciseSets(ctx context.Context, userID, exerciseID uuid.UUID) ([]*Set, error)
	}
)
