// Package catalog provides the exercise catalog.
//
// The catalog is authoritative for exercise identity: projections reference
// exercises by id, and ExerciseAdded events never extend the catalog. The base
// catalog is seeded by migration; deployments may extend it with a YAML file.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrExerciseNotFound indicates the exercise id is not in the catalog.
var ErrExerciseNotFound = errors.New("exercise not found")

type (
	// Exercise is one catalog entry.
	Exercise struct {
		ExerciseID     uuid.UUID
		Name           string
		MuscleCategory string
	}

	// Store persists the exercise catalog.
	Store interface {
		// ListExercises returns catalog entries, optionally filtered by
		// muscle category. An empty filter returns everything.
		ListExercises(ctx context.Context, muscleCategory string) ([]*Exercise, error)

		// GetExercise returns one entry or ErrExerciseNotFound.
		GetExercise(ctx context.Context, exerciseID uuid.UUID) (*Exercise, error)

		// EnsureExercises upserts entries by name, used to apply YAML catalog
		// extensions at startup.
		EnsureExercises(ctx context.Context, exercises []*Exercise) error
	}
)
