// Package projection defines the read models derived from the workout event
// log and the contracts for keeping them up to date.
//
// Projections are disposable: they can always be rebuilt from the log, and the
// incremental updater and the full rebuild must produce identical rows for the
// same log contents.
package projection

import (
	"time"

	"github.com/google/uuid"
)

// WorkoutStatus is the lifecycle state of a projected workout.
type WorkoutStatus string

// Workout lifecycle states.
const (
	StatusInProgress WorkoutStatus = "in_progress"
	StatusCompleted  WorkoutStatus = "completed"
	StatusCancelled  WorkoutStatus = "cancelled"
)

type (
	// Workout is the projected state of a single workout session.
	Workout struct {
		WorkoutID uuid.UUID
		UserID    uuid.UUID
		StartedAt time.Time
		EndedAt   *time.Time
		Status    WorkoutStatus
	}

	// Set is a projected completed set within a workout.
	// Reps and Weight are pointers because historic events may omit them;
	// volume math treats nil as zero.
	Set struct {
		SetID       uuid.UUID
		WorkoutID   uuid.UUID
		ExerciseID  uuid.UUID
		Reps        *int
		Weight      *float64
		CompletedAt time.Time
	}

	// ExerciseRef names an exercise that appears in a workout summary.
	ExerciseRef struct {
		ExerciseID uuid.UUID
		Name       string
	}

	// WorkoutSummary is a workout enriched with aggregates for list views.
	WorkoutSummary struct {
		Workout

		SetsCount   int
		TotalVolume float64
		Exercises   []ExerciseRef
	}
)

// Volume returns the training volume of the set, treating missing reps or
// weight as zero.
func (s *Set) Volume() float64 {
	if s.Reps == nil || s.Weight == nil {
		return 0
	}

	return float64(*s.Reps) * *s.Weight
}
