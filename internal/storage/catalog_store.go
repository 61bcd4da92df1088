package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/repsync-io/repsync/internal/catalog"
)

// Compile-time interface compliance check.
var _ catalog.Store = (*CatalogStore)(nil)

// CatalogStore persists the exercise catalog.
type CatalogStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewCatalogStore creates a CatalogStore.
//
// Returns ErrNoDatabaseConnection if conn is nil.
func NewCatalogStore(conn *Connection, logger *slog.Logger) (*CatalogStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &CatalogStore{conn: conn, logger: logger}, nil
}

// ListExercises returns catalog entries ordered by name, optionally filtered
// by muscle category.
func (s *CatalogStore) ListExercises(ctx context.Context, muscleCategory string) ([]*catalog.Exercise, error) {
	query := `
		SELECT exercise_id, name, muscle_category
		FROM exercises
		WHERE $1 = '' OR muscle_category = $1
		ORDER BY name`

	rows, err := s.conn.QueryContext(ctx, query, muscleCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var exercises []*catalog.Exercise

	for rows.Next() {
		var exercise catalog.Exercise
		if err := rows.Scan(&exercise.ExerciseID, &exercise.Name, &exercise.MuscleCategory); err != nil {
			return nil, fmt.Errorf("failed to scan exercise: %w", err)
		}

		exercises = append(exercises, &exercise)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exercise iteration failed: %w", err)
	}

	return exercises, nil
}

// GetExercise returns one catalog entry or catalog.ErrExerciseNotFound.
func (s *CatalogStore) GetExercise(ctx context.Context, exerciseID uuid.UUID) (*catalog.Exercise, error) {
	query := `
		SELECT exercise_id, name, muscle_category
		FROM exercises
		WHERE exercise_id = $1`

	var exercise catalog.Exercise

	err := s.conn.QueryRowContext(ctx, query, exerciseID).Scan(
		&exercise.ExerciseID, &exercise.Name, &exercise.MuscleCategory,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", catalog.ErrExerciseNotFound, exerciseID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}

	return &exercise, nil
}

// EnsureExercises upserts catalog entries by name. Used at startup to apply
// YAML catalog extensions on top of the migration seed.
func (s *CatalogStore) EnsureExercises(ctx context.Context, exercises []*catalog.Exercise) error {
	if len(exercises) == 0 {
		return nil
	}

	query := `
		INSERT INTO exercises (exercise_id, name, muscle_category)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			muscle_category = EXCLUDED.muscle_category`

	for _, exercise := range exercises {
		if _, err := s.conn.ExecContext(ctx, query,
			exercise.ExerciseID, exercise.Name, exercise.MuscleCategory,
		); err != nil {
			return fmt.Errorf("failed to upsert exercise %q: %w", exercise.Name, err)
		}
	}

	s.logger.Info("exercise catalog extensions applied", slog.Int("entries", len(exercises)))

	return nil
}
