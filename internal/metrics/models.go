package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrMetricsNotFound indicates no weekly metrics row exists for the
// (user, week) pair.
var ErrMetricsNotFound = errors.New("weekly metrics not found")

type (
	// WeeklyMetrics aggregates one user's training for one Monday-anchored week.
	//
	// TotalVolume sums reps × weight over the sets of completed workouts whose
	// started_at date falls inside the week. Missing reps or weight count as
	// zero. ExercisesCount is the number of distinct exercises across those
	// sets.
	WeeklyMetrics struct {
		UserID         uuid.UUID
		WeekStart      time.Time
		TotalWorkouts  int
		TotalVolume    float64
		ExercisesCount int
	}

	// Store calculates and serves weekly metrics.
	Store interface {
		// CalculateWeek recalculates and upserts the metrics row for the week,
		// returning the fresh values. Recalculating is idempotent.
		CalculateWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*WeeklyMetrics, error)

		// RebuildForUser recalculates every week the user has completed
		// workouts in.
		RebuildForUser(ctx context.Context, userID uuid.UUID) error

		// GetWeek returns the stored metrics row or ErrMetricsNotFound.
		GetWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*WeeklyMetrics, error)
	}
)
