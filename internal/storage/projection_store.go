package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/repsync-io/repsync/internal/ingestion"
	"github.com/repsync-io/repsync/internal/metrics"
	"github.com/repsync-io/repsync/internal/projection"
)

// Compile-time interface compliance checks.
var (
	_ ingestion.Projector  = (*ProjectionStore)(nil)
	_ projection.Rebuilder = (*ProjectionStore)(nil)
	_ projection.Store     = (*ProjectionStore)(nil)
)

// ProjectionStore maintains and serves the workout read models.
//
// The incremental updater (Apply) and the full rebuild (Rebuild) share the
// same replay semantics, which is what makes projections disposable: replaying
// the log from scratch always converges on the same rows.
type ProjectionStore struct {
	conn    *Connection
	metrics metrics.Store
	logger  *slog.Logger
}

// NewProjectionStore creates a ProjectionStore.
//
// metricsStore is recalculated for affected users after projection commits;
// it may not be nil. Returns ErrNoDatabaseConnection if conn is nil.
func NewProjectionStore(conn *Connection, metricsStore metrics.Store, logger *slog.Logger) (*ProjectionStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &ProjectionStore{conn: conn, metrics: metricsStore, logger: logger}, nil
}

// Apply updates projections from newly accepted events.
//
// All projection writes happen in one transaction, in two phases: workout
// events first, set events second, so set rows always find their workout row.
// After commit, weekly metrics are recalculated for each affected user; a
// metrics failure is logged and left for the next sync or rebuild.
func (s *ProjectionStore) Apply(ctx context.Context, events []*ingestion.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin projection transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if err := s.replay(ctx, tx, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit projection update: %w", err)
	}

	s.recalculateMetrics(ctx, affectedUsers(events))

	return nil
}

// Rebuild drops all projections and replays the entire event log.
//
// Sets are deleted before workouts to respect the foreign key. Events replay
// in (device_id, sequence_number) order with the same semantics as Apply.
// After commit, weekly metrics are rebuilt for every user with workouts.
func (s *ProjectionStore) Rebuild(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rebuild transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sets_projection`); err != nil {
		return fmt.Errorf("failed to clear sets projection: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workouts_projection`); err != nil {
		return fmt.Errorf("failed to clear workouts projection: %w", err)
	}

	events, err := s.loadAllEventsOrdered(ctx, tx)
	if err != nil {
		return err
	}

	if err := s.replay(ctx, tx, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rebuild: %w", err)
	}

	s.logger.Info("projections rebuilt", slog.Int("events_replayed", len(events)))

	userIDs, err := s.usersWithWorkouts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users for metrics rebuild: %w", err)
	}

	s.recalculateMetrics(ctx, userIDs)

	return nil
}

// replay runs the two-phase projection update inside the caller's transaction.
// The workoutCache keeps rows written earlier in the transaction visible to
// later events without re-querying.
func (s *ProjectionStore) replay(ctx context.Context, tx *sql.Tx, events []*ingestion.Event) error {
	cache := make(map[uuid.UUID]*projection.Workout)

	// Phase A: workout lifecycle events.
	for _, event := range events {
		select {
		case <-ctx.Done():
			return fmt.Errorf("projection replay cancelled: %w", ctx.Err())
		default:
		}

		switch event.EventType {
		case ingestion.EventTypeWorkoutStarted:
			if err := s.applyWorkoutStarted(ctx, tx, cache, event); err != nil {
				return err
			}
		case ingestion.EventTypeWorkoutEnded:
			if err := s.applyWorkoutEnded(ctx, tx, cache, event); err != nil {
				return err
			}
		case ingestion.EventTypeExerciseAdded, ingestion.EventTypeSetCompleted:
			// ExerciseAdded never alters projections; sets wait for phase B.
		}
	}

	// Phase B: set events, now that every workout row exists.
	for _, event := range events {
		if event.EventType != ingestion.EventTypeSetCompleted {
			continue
		}

		if err := s.applySetCompleted(ctx, tx, cache, event); err != nil {
			return err
		}
	}

	return nil
}

func (s *ProjectionStore) applyWorkoutStarted(
	ctx context.Context,
	tx *sql.Tx,
	cache map[uuid.UUID]*projection.Workout,
	event *ingestion.Event,
) error {
	var payload ingestion.WorkoutStartedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("malformed WorkoutStarted payload for event %s: %w", event.EventID, err)
	}

	workout, err := s.fetchWorkoutForUpdate(ctx, tx, cache, payload.WorkoutID)
	if err != nil {
		return err
	}

	switch {
	case workout == nil:
		workout = &projection.Workout{
			WorkoutID: payload.WorkoutID,
			UserID:    event.UserID,
			StartedAt: payload.StartedAt,
			Status:    projection.StatusInProgress,
		}

		if err := s.insertWorkout(ctx, tx, workout); err != nil {
			return err
		}
	case workout.Status == projection.StatusCompleted:
		// A late WorkoutStarted must not reopen a completed workout.
		workout.StartedAt = payload.StartedAt

		if err := s.updateWorkout(ctx, tx, workout); err != nil {
			return err
		}
	default:
		workout.StartedAt = payload.StartedAt
		workout.Status = projection.StatusInProgress
		workout.EndedAt = nil

		if err := s.updateWorkout(ctx, tx, workout); err != nil {
			return err
		}
	}

	cache[workout.WorkoutID] = workout

	return nil
}

func (s *ProjectionStore) applyWorkoutEnded(
	ctx context.Context,
	tx *sql.Tx,
	cache map[uuid.UUID]*projection.Workout,
	event *ingestion.Event,
) error {
	var payload ingestion.WorkoutEndedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("malformed WorkoutEnded payload for event %s: %w", event.EventID, err)
	}

	workout, err := s.fetchWorkoutForUpdate(ctx, tx, cache, payload.WorkoutID)
	if err != nil {
		return err
	}

	endedAt := payload.EndedAt

	if workout == nil {
		// WorkoutEnded arrived before its WorkoutStarted (cross-batch
		// reordering). Synthesize the workout; a late WorkoutStarted will fix
		// started_at without reopening it.
		s.logger.Warn("synthesizing workout for WorkoutEnded without WorkoutStarted",
			slog.String("workout_id", payload.WorkoutID.String()),
			slog.String("user_id", event.UserID.String()),
		)

		workout = &projection.Workout{
			WorkoutID: payload.WorkoutID,
			UserID:    event.UserID,
			StartedAt: endedAt,
			EndedAt:   &endedAt,
			Status:    projection.StatusCompleted,
		}

		if err := s.insertWorkout(ctx, tx, workout); err != nil {
			return err
		}
	} else {
		workout.Status = projection.StatusCompleted
		workout.EndedAt = &endedAt

		if err := s.updateWorkout(ctx, tx, workout); err != nil {
			return err
		}
	}

	cache[workout.WorkoutID] = workout

	return nil
}

func (s *ProjectionStore) applySetCompleted(
	ctx context.Context,
	tx *sql.Tx,
	cache map[uuid.UUID]*projection.Workout,
	event *ingestion.Event,
) error {
	var payload ingestion.SetCompletedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("malformed SetCompleted payload for event %s: %w", event.EventID, err)
	}

	workout, err := s.fetchWorkoutForUpdate(ctx, tx, cache, payload.WorkoutID)
	if err != nil {
		return err
	}

	if workout == nil {
		s.logger.Warn("skipping set for unknown workout",
			slog.String("set_id", payload.SetID.String()),
			slog.String("workout_id", payload.WorkoutID.String()),
		)

		return nil
	}

	query := `
		INSERT INTO sets_projection (set_id, workout_id, exercise_id, reps, weight, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (set_id) DO UPDATE SET
			workout_id   = EXCLUDED.workout_id,
			exercise_id  = EXCLUDED.exercise_id,
			reps         = EXCLUDED.reps,
			weight       = EXCLUDED.weight,
			completed_at = EXCLUDED.completed_at`

	_, err = tx.ExecContext(ctx, query,
		payload.SetID,
		payload.WorkoutID,
		payload.ExerciseID,
		payload.Reps,
		payload.Weight,
		payload.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert set %s: %w", payload.SetID, err)
	}

	return nil
}

// fetchWorkoutForUpdate returns the workout from the transaction-local cache
// or locks and loads it from the table. Returns (nil, nil) when the workout
// does not exist.
func (s *ProjectionStore) fetchWorkoutForUpdate(
	ctx context.Context,
	tx *sql.Tx,
	cache map[uuid.UUID]*projection.Workout,
	workoutID uuid.UUID,
) (*projection.Workout, error) {
	if workout, ok := cache[workoutID]; ok {
		return workout, nil
	}

	query := `
		SELECT workout_id, user_id, started_at, ended_at, status
		FROM workouts_projection
		WHERE workout_id = $1
		FOR UPDATE`

	workout, err := scanWorkout(tx.QueryRowContext(ctx, query, workoutID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch workout %s: %w", workoutID, err)
	}

	cache[workoutID] = workout

	return workout, nil
}

func (s *ProjectionStore) insertWorkout(ctx context.Context, tx *sql.Tx, w *projection.Workout) error {
	query := `
		INSERT INTO workouts_projection (workout_id, user_id, started_at, ended_at, status)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.ExecContext(ctx, query, w.WorkoutID, w.UserID, w.StartedAt, w.EndedAt, string(w.Status))
	if err != nil {
		return fmt.Errorf("failed to insert workout %s: %w", w.WorkoutID, err)
	}

	return nil
}

func (s *ProjectionStore) updateWorkout(ctx context.Context, tx *sql.Tx, w *projection.Workout) error {
	query := `
		UPDATE workouts_projection
		SET started_at = $2, ended_at = $3, status = $4
		WHERE workout_id = $1`

	_, err := tx.ExecContext(ctx, query, w.WorkoutID, w.StartedAt, w.EndedAt, string(w.Status))
	if err != nil {
		return fmt.Errorf("failed to update workout %s: %w", w.WorkoutID, err)
	}

	return nil
}

func (s *ProjectionStore) loadAllEventsOrdered(ctx context.Context, tx *sql.Tx) ([]*ingestion.Event, error) {
	query := `
		SELECT event_id, event_type, payload, user_id, device_id, sequence_number
		FROM events
		ORDER BY device_id, sequence_number`

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load event log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*ingestion.Event

	for rows.Next() {
		var (
			event     ingestion.Event
			eventType string
			payload   []byte
		)

		if err := rows.Scan(
			&event.EventID, &eventType, &payload,
			&event.UserID, &event.DeviceID, &event.SequenceNumber,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.EventType = ingestion.EventType(eventType)
		event.Payload = payload
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event log iteration failed: %w", err)
	}

	return events, nil
}

func (s *ProjectionStore) usersWithWorkouts(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT DISTINCT user_id FROM workouts_projection`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var userIDs []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		userIDs = append(userIDs, id)
	}

	return userIDs, rows.Err()
}

// recalculateMetrics rebuilds weekly metrics for each user. Projection rows
// are already committed at this point, so failures degrade to stale metrics
// rather than lost data.
func (s *ProjectionStore) recalculateMetrics(ctx context.Context, userIDs []uuid.UUID) {
	if s.metrics == nil {
		return
	}

	for _, userID := range userIDs {
		if err := s.metrics.RebuildForUser(ctx, userID); err != nil {
			s.logger.Error("weekly metrics rebuild failed",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func affectedUsers(events []*ingestion.Event) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)

	var userIDs []uuid.UUID

	for _, event := range events {
		if !seen[event.UserID] {
			seen[event.UserID] = true

			userIDs = append(userIDs, event.UserID)
		}
	}

	return userIDs
}

// ListWorkouts returns the user's workouts newest-first with set counts,
// volume and exercises. Sets and exercise names are fetched with two batched
// queries regardless of how many workouts the user has.
func (s *ProjectionStore) ListWorkouts(ctx context.Context, userID uuid.UUID) ([]*projection.WorkoutSummary, error) {
	query := `
		SELECT workout_id, user_id, started_at, ended_at, status
		FROM workouts_projection
		WHERE user_id = $1
		ORDER BY started_at DESC`

	rows, err := s.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []*projection.WorkoutSummary

	for rows.Next() {
		workout, err := scanWorkoutRows(rows)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, &projection.WorkoutSummary{Workout: *workout})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workout iteration failed: %w", err)
	}

	if len(summaries) == 0 {
		return summaries, nil
	}

	workoutIDs := make([]uuid.UUID, 0, len(summaries))
	for _, summary := range summaries {
		workoutIDs = append(workoutIDs, summary.WorkoutID)
	}

	setsByWorkout, err := s.ListSetsBatch(ctx, workoutIDs)
	if err != nil {
		return nil, err
	}

	exercisesByWorkout, err := s.exercisesForWorkouts(ctx, workoutIDs)
	if err != nil {
		return nil, err
	}

	for _, summary := range summaries {
		sets := setsByWorkout[summary.WorkoutID]
		summary.SetsCount = len(sets)

		for _, set := range sets {
			summary.TotalVolume += set.Volume()
		}

		summary.Exercises = exercisesByWorkout[summary.WorkoutID]
	}

	return summaries, nil
}

// GetWorkout returns one projected workout or projection.ErrWorkoutNotFound.
func (s *ProjectionStore) GetWorkout(ctx context.Context, workoutID uuid.UUID) (*projection.Workout, error) {
	query := `
		SELECT workout_id, user_id, started_at, ended_at, status
		FROM workouts_projection
		WHERE workout_id = $1`

	workout, err := scanWorkout(s.conn.QueryRowContext(ctx, query, workoutID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", projection.ErrWorkoutNotFound, workoutID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get workout %s: %w", workoutID, err)
	}

	return workout, nil
}

// WorkoutsByIDs returns the user's workouts among the given ids in one query.
func (s *ProjectionStore) WorkoutsByIDs(
	ctx context.Context,
	userID uuid.UUID,
	workoutIDs []uuid.UUID,
) ([]*projection.Workout, error) {
	if len(workoutIDs) == 0 {
		return nil, nil
	}

	idStrings := make([]string, 0, len(workoutIDs))
	for _, id := range workoutIDs {
		idStrings = append(idStrings, id.String())
	}

	query := `
		SELECT workout_id, user_id, started_at, ended_at, status
		FROM workouts_projection
		WHERE workout_id = ANY($1) AND user_id = $2`

	rows, err := s.conn.QueryContext(ctx, query, pq.Array(idStrings), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to batch load workouts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var workouts []*projection.Workout

	for rows.Next() {
		workout, err := scanWorkoutRows(rows)
		if err != nil {
			return nil, err
		}

		workouts = append(workouts, workout)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workout iteration failed: %w", err)
	}

	return workouts, nil
}

// ListSets returns the workout's sets ordered by completed_at ascending.
func (s *ProjectionStore) ListSets(ctx context.Context, workoutID uuid.UUID) ([]*projection.Set, error) {
	query := `
		SELECT set_id, workout_id, exercise_id, reps, weight, completed_at
		FROM sets_projection
		WHERE workout_id = $1
		ORDER BY completed_at, set_id`

	rows, err := s.conn.QueryContext(ctx, query, workoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectSets(rows)
}

// ListSetsBatch returns sets for many workouts in one query.
func (s *ProjectionStore) ListSetsBatch(
	ctx context.Context,
	workoutIDs []uuid.UUID,
) (map[uuid.UUID][]*projection.Set, error) {
	result := make(map[uuid.UUID][]*projection.Set, len(workoutIDs))
	if len(workoutIDs) == 0 {
		return result, nil
	}

	idStrings := make([]string, 0, len(workoutIDs))
	for _, id := range workoutIDs {
		idStrings = append(idStrings, id.String())
	}

	query := `
		SELECT set_id, workout_id, exercise_id, reps, weight, completed_at
		FROM sets_projection
		WHERE workout_id = ANY($1)
		ORDER BY completed_at, set_id`

	rows, err := s.conn.QueryContext(ctx, query, pq.Array(idStrings))
	if err != nil {
		return nil, fmt.Errorf("failed to batch list sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sets, err := collectSets(rows)
	if err != nil {
		return nil, err
	}

	for _, set := range sets {
		result[set.WorkoutID] = append(result[set.WorkoutID], set)
	}

	return result, nil
}

// LastExerciseSets returns the sets of the exercise from the user's most
// recent workout containing it.
func (s *ProjectionStore) LastExerciseSets(
	ctx context.Context,
	userID, exerciseID uuid.UUID,
) ([]*projection.Set, error) {
	query := `
		SELECT w.workout_id
		FROM workouts_projection w
		JOIN sets_projection s ON s.workout_id = w.workout_id
		WHERE w.user_id = $1 AND s.exercise_id = $2
		ORDER BY w.started_at DESC
		LIMIT 1`

	var workoutID uuid.UUID

	err := s.conn.QueryRowContext(ctx, query, userID, exerciseID).Scan(&workoutID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", projection.ErrExerciseNeverPerformed, exerciseID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find last workout for exercise %s: %w", exerciseID, err)
	}

	setsQuery := `
		SELECT set_id, workout_id, exercise_id, reps, weight, completed_at
		FROM sets_projection
		WHERE workout_id = $1 AND exercise_id = $2
		ORDER BY completed_at, set_id`

	rows, err := s.conn.QueryContext(ctx, setsQuery, workoutID, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list last exercise sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectSets(rows)
}

func (s *ProjectionStore) exercisesForWorkouts(
	ctx context.Context,
	workoutIDs []uuid.UUID,
) (map[uuid.UUID][]projection.ExerciseRef, error) {
	idStrings := make([]string, 0, len(workoutIDs))
	for _, id := range workoutIDs {
		idStrings = append(idStrings, id.String())
	}

	query := `
		SELECT DISTINCT s.workout_id, s.exercise_id, COALESCE(e.name, '')
		FROM sets_projection s
		LEFT JOIN exercises e ON e.exercise_id = s.exercise_id
		WHERE s.workout_id = ANY($1)`

	rows, err := s.conn.QueryContext(ctx, query, pq.Array(idStrings))
	if err != nil {
		return nil, fmt.Errorf("failed to list workout exercises: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[uuid.UUID][]projection.ExerciseRef)

	for rows.Next() {
		var (
			workoutID uuid.UUID
			ref       projection.ExerciseRef
		)

		if err := rows.Scan(&workoutID, &ref.ExerciseID, &ref.Name); err != nil {
			return nil, fmt.Errorf("failed to scan workout exercise: %w", err)
		}

		result[workoutID] = append(result[workoutID], ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workout exercise iteration failed: %w", err)
	}

	for _, refs := range result {
		sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkout(row rowScanner) (*projection.Workout, error) {
	var (
		workout projection.Workout
		endedAt sql.NullTime
		status  string
	)

	if err := row.Scan(&workout.WorkoutID, &workout.UserID, &workout.StartedAt, &endedAt, &status); err != nil {
		return nil, err
	}

	if endedAt.Valid {
		t := endedAt.Time
		workout.EndedAt = &t
	}

	workout.Status = projection.WorkoutStatus(status)

	return &workout, nil
}

func scanWorkoutRows(rows *sql.Rows) (*projection.Workout, error) {
	workout, err := scanWorkout(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workout: %w", err)
	}

	return workout, nil
}

func collectSets(rows *sql.Rows) ([]*projection.Set, error) {
	var sets []*projection.Set

	for rows.Next() {
		var (
			set    projection.Set
			reps   sql.NullInt64
			weight sql.NullFloat64
		)

		if err := rows.Scan(&set.SetID, &set.WorkoutID, &set.ExerciseID, &reps, &weight, &set.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan set: %w", err)
		}

		if reps.Valid {
			r := int(reps.Int64)
			set.Reps = &r
		}

		if weight.Valid {
			w := weight.Float64
			set.Weight = &w
		}

		sets = append(sets, &set)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("set iteration failed: %w", err)
	}

	return sets, nil
}
