package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/repsync-io/repsync/internal/metrics"
)

// Compile-time interface compliance check.
var _ metrics.Store = (*MetricsStore)(nil)

// MetricsStore calculates and serves weekly training metrics.
//
// The calculation helpers are written against querier so the identity merge
// can recompute metrics inside its own transaction.
type MetricsStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewMetricsStore creates a MetricsStore.
//
// Returns ErrNoDatabaseConnection if conn is nil.
func NewMetricsStore(conn *Connection, logger *slog.Logger) (*MetricsStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &MetricsStore{conn: conn, logger: logger}, nil
}

// CalculateWeek recalculates and upserts the metrics row for the user's week.
func (s *MetricsStore) CalculateWeek(
	ctx context.Context,
	userID uuid.UUID,
	weekStart time.Time,
) (*metrics.WeeklyMetrics, error) {
	return calculateWeeklyMetrics(ctx, s.conn, userID, weekStart)
}

// RebuildForUser recalculates metrics for every week the user completed
// workouts in.
func (s *MetricsStore) RebuildForUser(ctx context.Context, userID uuid.UUID) error {
	return rebuildWeeklyMetrics(ctx, s.conn, userID)
}

// GetWeek returns the stored metrics row or metrics.ErrMetricsNotFound.
func (s *MetricsStore) GetWeek(
	ctx context.Context,
	userID uuid.UUID,
	weekStart time.Time,
) (*metrics.WeeklyMetrics, error) {
	weekStart = metrics.WeekStart(weekStart)

	query := `
		SELECT user_id, week_start, total_workouts, total_volume, exercises_count
		FROM weekly_metrics
		WHERE user_id = $1 AND week_start = $2`

	var m metrics.WeeklyMetrics

	err := s.conn.QueryRowContext(ctx, query, userID, weekStart).Scan(
		&m.UserID, &m.WeekStart, &m.TotalWorkouts, &m.TotalVolume, &m.ExercisesCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s week %s",
			metrics.ErrMetricsNotFound, userID, weekStart.Format(time.DateOnly))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get weekly metrics: %w", err)
	}

	m.WeekStart = m.WeekStart.UTC()

	return &m, nil
}

// calculateWeeklyMetrics aggregates one (user, week) pair and upserts the row.
//
// Two queries total: one for the week's completed workouts, one batched fetch
// of their sets.
func calculateWeeklyMetrics(
	ctx context.Context,
	q querier,
	userID uuid.UUID,
	weekStart time.Time,
) (*metrics.WeeklyMetrics, error) {
	weekStart = metrics.WeekStart(weekStart)
	weekEndExclusive := weekStart.AddDate(0, 0, 7)

	workoutsQuery := `
		SELECT workout_id
		FROM workouts_projection
		WHERE user_id = $1
		  AND status = 'completed'
		  AND started_at >= $2
		  AND started_at < $3`

	rows, err := q.QueryContext(ctx, workoutsQuery, userID, weekStart, weekEndExclusive)
	if err != nil {
		return nil, fmt.Errorf("failed to query week workouts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var workoutIDs []string

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan workout id: %w", err)
		}

		workoutIDs = append(workoutIDs, id.String())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("week workout iteration failed: %w", err)
	}

	result := &metrics.WeeklyMetrics{
		UserID:        userID,
		WeekStart:     weekStart,
		TotalWorkouts: len(workoutIDs),
	}

	if len(workoutIDs) > 0 {
		setsQuery := `
			SELECT exercise_id, reps, weight
			FROM sets_projection
			WHERE workout_id = ANY($1)`

		setRows, err := q.QueryContext(ctx, setsQuery, pq.Array(workoutIDs))
		if err != nil {
			return nil, fmt.Errorf("failed to query week sets: %w", err)
		}
		defer func() { _ = setRows.Close() }()

		exercises := make(map[uuid.UUID]bool)

		for setRows.Next() {
			var (
				exerciseID uuid.UUID
				reps       sql.NullInt64
				weight     sql.NullFloat64
			)

			if err := setRows.Scan(&exerciseID, &reps, &weight); err != nil {
				return nil, fmt.Errorf("failed to scan set: %w", err)
			}

			exercises[exerciseID] = true

			if reps.Valid && weight.Valid {
				result.TotalVolume += float64(reps.Int64) * weight.Float64
			}
		}

		if err := setRows.Err(); err != nil {
			return nil, fmt.Errorf("week set iteration failed: %w", err)
		}

		result.ExercisesCount = len(exercises)
	}

	upsert := `
		INSERT INTO weekly_metrics (user_id, week_start, total_workouts, total_volume, exercises_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, week_start) DO UPDATE SET
			total_workouts  = EXCLUDED.total_workouts,
			total_volume    = EXCLUDED.total_volume,
			exercises_count = EXCLUDED.exercises_count`

	_, err = q.ExecContext(ctx, upsert,
		userID, weekStart, result.TotalWorkouts, result.TotalVolume, result.ExercisesCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert weekly metrics: %w", err)
	}

	return result, nil
}

// rebuildWeeklyMetrics recalculates every week the user has completed
// workouts in.
func rebuildWeeklyMetrics(ctx context.Context, q querier, userID uuid.UUID) error {
	query := `
		SELECT started_at
		FROM workouts_projection
		WHERE user_id = $1 AND status = 'completed'`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to query completed workouts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	weeks := make(map[time.Time]bool)

	for rows.Next() {
		var startedAt time.Time
		if err := rows.Scan(&startedAt); err != nil {
			return fmt.Errorf("failed to scan workout start: %w", err)
		}

		weeks[metrics.WeekStart(startedAt)] = true
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("completed workout iteration failed: %w", err)
	}

	for week := range weeks {
		if _, err := calculateWeeklyMetrics(ctx, q, userID, week); err != nil {
			return fmt.Errorf("week %s: %w", week.Format(time.DateOnly), err)
		}
	}

	return nil
}
