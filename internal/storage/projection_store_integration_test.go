package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repsync-io/repsync/internal/ingestion"
	"github.com/repsync-io/repsync/internal/projection"
)

// Seeded catalog entries used to verify exercise names in summaries.
var (
	benchPressID = uuid.MustParse("6f1c2a40-0001-4c01-8a01-000000000001")
	squatID      = uuid.MustParse("6f1c2a40-0001-4c01-8a01-000000000004")
)

func TestProjectionStore_WorkoutLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	workoutID := uuid.New()
	startedAt := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

	env.ingest(ctx, t,
		workoutStartedEvent(t, user.UserID, "device-1", 1, workoutID, startedAt),
		setCompletedEvent(t, user.UserID, "device-1", 2, workoutID, benchPressID, 8, 80, startedAt.Add(5*time.Minute)),
		setCompletedEvent(t, user.UserID, "device-1", 3, workoutID, squatID, 5, 120, startedAt.Add(15*time.Minute)),
		workoutEndedEvent(t, user.UserID, "device-1", 4, workoutID, startedAt.Add(time.Hour)),
	)

	workout, err := env.projections.GetWorkout(ctx, workoutID)
	require.NoError(t, err)
	assert.Equal(t, projection.StatusCompleted, workout.Status)
	assert.Equal(t, user.UserID, workout.UserID)
	require.NotNil(t, workout.EndedAt)
	assert.WithinDuration(t, startedAt.Add(time.Hour), *workout.EndedAt, time.Second)

	sets, err := env.projections.ListSets(ctx, workoutID)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	// Ordered by completed_at ascending.
	assert.Equal(t, benchPressID, sets[0].ExerciseID)
	assert.Equal(t, squatID, sets[1].ExerciseID)

	summaries, err := env.projections.ListWorkouts(ctx, user.UserID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	summary := summaries[0]
	assert.Equal(t, 2, summary.SetsCount)
	assert.InDelta(t, 8*80.0+5*120.0, summary.TotalVolume, 0.001)

	require.Len(t, summary.Exercises, 2)
	// Exercise refs are sorted by name.
	assert.Equal(t, "Bench Press", summary.Exercises[0].Name)
	assert.Equal(t, "Squat", summary.Exercises[1].Name)
}

func TestProjectionStore_WorkoutEndedBeforeStarted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	workoutID := uuid.New()
	startedAt := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	endedAt := startedAt.Add(time.Hour)

	// WorkoutEnded arrives first (cross-batch reordering); the workout is
	// synthesized as completed.
	env.ingest(ctx, t, workoutEndedEvent(t, user.UserID, "device-1", 5, workoutID, endedAt))

	workout, err := env.projections.GetWorkout(ctx, workoutID)
	require.NoError(t, err)
	assert.Equal(t, projection.StatusCompleted, workout.Status)
	assert.WithinDuration(t, endedAt, workout.StartedAt, time.Second,
		"synthesized workout should use ended_at as a placeholder start")

	// The late WorkoutStarted fixes started_at without reopening the workout.
	env.ingest(ctx, t, workoutStartedEvent(t, user.UserID, "device-2", 1, workoutID, startedAt))

	workout, err = env.projections.GetWorkout(ctx, workoutID)
	require.NoError(t, err)
	assert.Equal(t, projection.StatusCompleted, workout.Status, "late WorkoutStarted reopened a completed workout")
	assert.WithinDuration(t, startedAt, workout.StartedAt, time.Second)
	require.NotNil(t, workout.EndedAt)
	assert.WithinDuration(t, endedAt, *workout.EndedAt, time.Second)
}

func TestProjectionStore_SetForUnknownWorkoutIsSkipped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	unknownWorkout := uuid.New()

	event := setCompletedEvent(t, user.UserID, "device-1", 1,
		unknownWorkout, benchPressID, 8, 80, time.Now().UTC())

	require.NoError(t, env.events.InsertEvent(ctx, event))
	require.NoError(t, env.projections.Apply(ctx, []*ingestion.Event{event}),
		"a set without its workout must be skipped, not fail the batch")

	sets, err := env.projections.ListSets(ctx, unknownWorkout)
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestProjectionStore_SetReplayIsUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	workoutID := uuid.New()
	startedAt := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

	setEvent := setCompletedEvent(t, user.UserID, "device-1", 2,
		workoutID, benchPressID, 8, 80, startedAt.Add(5*time.Minute))

	env.ingest(ctx, t,
		workoutStartedEvent(t, user.UserID, "device-1", 1, workoutID, startedAt),
		setEvent,
	)

	// Re-applying the same set event must not duplicate the row.
	require.NoError(t, env.projections.Apply(ctx, []*ingestion.Event{setEvent}))

	sets, err := env.projections.ListSets(ctx, workoutID)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.NotNil(t, sets[0].Reps)
	assert.Equal(t, 8, *sets[0].Reps)
}

func TestProjectionStore_RebuildMatchesIncremental(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	firstWorkout := uuid.New()
	secondWorkout := uuid.New()
	base := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

	// Two workouts ingested incrementally across separate batches.
	env.ingest(ctx, t,
		workoutStartedEvent(t, user.UserID, "device-1", 1, firstWorkout, base),
		setCompletedEvent(t, user.UserID, "device-1", 2, firstWorkout, benchPressID, 8, 80, base.Add(5*time.Minute)),
		workoutEndedEvent(t, user.UserID, "device-1", 3, firstWorkout, base.Add(time.Hour)),
	)
	env.ingest(ctx, t,
		workoutStartedEvent(t, user.UserID, "device-1", 4, secondWorkout, base.AddDate(0, 0, 2)),
		setCompletedEvent(t, user.UserID, "device-1", 5, secondWorkout, squatID, 5, 120, base.AddDate(0, 0, 2).Add(10*time.Minute)),
		workoutEndedEvent(t, user.UserID, "device-1", 6, secondWorkout, base.AddDate(0, 0, 2).Add(time.Hour)),
	)

	incremental, err := env.projections.ListWorkouts(ctx, user.UserID)
	require.NoError(t, err)
	require.Len(t, incremental, 2)

	require.NoError(t, env.projections.Rebuild(ctx))

	rebuilt, err := env.projections.ListWorkouts(ctx, user.UserID)
	require.NoError(t, err)

	// Replaying the full log yields exactly the same read model.
	assert.Equal(t, incremental, rebuilt)

	// Rebuilding twice is idempotent.
	require.NoError(t, env.projections.Rebuild(ctx))

	again, err := env.projections.ListWorkouts(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, rebuilt, again)
}

func TestProjectionStore_LastExerciseSets(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	oldWorkout := uuid.New()
	recentWorkout := uuid.New()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	env.ingest(ctx, t,
		workoutStartedEvent(t, user.UserID, "device-1", 1, oldWorkout, base),
		setCompletedEvent(t, user.UserID, "device-1", 2, oldWorkout, benchPressID, 10, 60, base.Add(5*time.Minute)),
		workoutEndedEvent(t, user.UserID, "device-1", 3, oldWorkout, base.Add(time.Hour)),

		workoutStartedEvent(t, user.UserID, "device-1", 4, recentWorkout, base.AddDate(0, 0, 7)),
		setCompletedEvent(t, user.UserID, "device-1", 5, recentWorkout, benchPressID, 8, 82.5, base.AddDate(0, 0, 7).Add(5*time.Minute)),
		setCompletedEvent(t, user.UserID, "device-1", 6, recentWorkout, benchPressID, 6, 85, base.AddDate(0, 0, 7).Add(10*time.Minute)),
		workoutEndedEvent(t, user.UserID, "device-1", 7, recentWorkout, base.AddDate(0, 0, 7).Add(time.Hour)),
	)

	sets, err := env.projections.LastExerciseSets(ctx, user.UserID, benchPressID)
	require.NoError(t, err)

	// Only the most recent workout's sets.
	require.Len(t, sets, 2)
	assert.Equal(t, recentWorkout, sets[0].WorkoutID)
	assert.Equal(t, recentWorkout, sets[1].WorkoutID)

	_, err = env.projections.LastExerciseSets(ctx, user.UserID, squatID)
	require.ErrorIs(t, err, projection.ErrExerciseNeverPerformed)
}

func TestProjectionStore_WorkoutsByIDs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	other := env.createAnonymousUser(ctx, t)
	ownWorkout := uuid.New()
	foreignWorkout := uuid.New()
	base := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

	env.ingest(ctx, t,
		workoutStartedEvent(t, user.UserID, "device-1", 1, ownWorkout, base),
		workoutStartedEvent(t, other.UserID, "device-2", 1, foreignWorkout, base),
	)

	// One query covering own, foreign and unknown ids; only the own workout
	// comes back.
	workouts, err := env.projections.WorkoutsByIDs(ctx, user.UserID,
		[]uuid.UUID{ownWorkout, foreignWorkout, uuid.New()})
	require.NoError(t, err)

	require.Len(t, workouts, 1)
	assert.Equal(t, ownWorkout, workouts[0].WorkoutID)

	workouts, err = env.projections.WorkoutsByIDs(ctx, user.UserID, nil)
	require.NoError(t, err)
	assert.Empty(t, workouts)
}

func TestProjectionStore_CancelledStatusStored(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	workoutID := uuid.New()

	_, err := env.conn.ExecContext(ctx, `
		INSERT INTO workouts_projection (workout_id, user_id, started_at, status)
		VALUES ($1, $2, $3, $4)`,
		workoutID, user.UserID, time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC),
		string(projection.StatusCancelled),
	)
	require.NoError(t, err, "schema must accept the cancelled lifecycle state")

	workout, err := env.projections.GetWorkout(ctx, workoutID)
	require.NoError(t, err)
	assert.Equal(t, projection.StatusCancelled, workout.Status)
}
