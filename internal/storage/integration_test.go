package storage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/repsync-io/repsync/internal/config"
	"github.com/repsync-io/repsync/internal/identity"
	"github.com/repsync-io/repsync/internal/ingestion"
)

// storageTestEnv bundles every store over one migrated test database.
type storageTestEnv struct {
	conn        *Connection
	events      *EventStore
	projections *ProjectionStore
	metrics     *MetricsStore
	users       *UserStore
	reports     *ReportStore
	catalog     *CatalogStore
}

// setupStorageTest starts a PostgreSQL container, runs all migrations and
// wires every store against it. Cleanup is registered on t.
func setupStorageTest(ctx context.Context, t *testing.T) *storageTestEnv {
	t.Helper()

	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	conn := NewConnectionFromDB(testDB.Connection)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eventStore, err := NewEventStore(conn, logger)
	require.NoError(t, err, "Failed to create event store")

	metricsStore, err := NewMetricsStore(conn, logger)
	require.NoError(t, err, "Failed to create metrics store")

	projectionStore, err := NewProjectionStore(conn, metricsStore, logger)
	require.NoError(t, err, "Failed to create projection store")

	userStore, err := NewUserStore(conn, logger)
	require.NoError(t, err, "Failed to create user store")

	reportStore, err := NewReportStore(conn)
	require.NoError(t, err, "Failed to create report store")

	catalogStore, err := NewCatalogStore(conn, logger)
	require.NoError(t, err, "Failed to create catalog store")

	return &storageTestEnv{
		conn:        conn,
		events:      eventStore,
		projections: projectionStore,
		metrics:     metricsStore,
		users:       userStore,
		reports:     reportStore,
		catalog:     catalogStore,
	}
}

// createAnonymousUser inserts a user row for tests that need to satisfy the
// weekly_metrics and weekly_reports foreign keys.
func (env *storageTestEnv) createAnonymousUser(ctx context.Context, t *testing.T) *identity.User {
	t.Helper()

	user, err := env.users.CreateAnonymousUser(ctx)
	require.NoError(t, err, "Failed to create anonymous user")

	return user
}

func mustPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err, "Failed to marshal payload")

	return data
}

func workoutStartedEvent(
	t *testing.T, userID uuid.UUID, deviceID string, seq int64,
	workoutID uuid.UUID, startedAt time.Time,
) *ingestion.Event {
	t.Helper()

	return &ingestion.Event{
		EventID:   uuid.New(),
		EventType: ingestion.EventTypeWorkoutStarted,
		Payload: mustPayload(t, ingestion.WorkoutStartedPayload{
			WorkoutID: workoutID,
			StartedAt: startedAt,
		}),
		UserID:         userID,
		DeviceID:       deviceID,
		SequenceNumber: seq,
		CreatedAt:      time.Now().UTC(),
	}
}

func workoutEndedEvent(
	t *testing.T, userID uuid.UUID, deviceID string, seq int64,
	workoutID uuid.UUID, endedAt time.Time,
) *ingestion.Event {
	t.Helper()

	return &ingestion.Event{
		EventID:   uuid.New(),
		EventType: ingestion.EventTypeWorkoutEnded,
		Payload: mustPayload(t, ingestion.WorkoutEndedPayload{
			WorkoutID: workoutID,
			EndedAt:   endedAt,
		}),
		UserID:         userID,
		DeviceID:       deviceID,
		SequenceNumber: seq,
		CreatedAt:      time.Now().UTC(),
	}
}

func setCompletedEvent(
	t *testing.T, userID uuid.UUID, deviceID string, seq int64,
	workoutID, exerciseID uuid.UUID, reps int, weight float64, completedAt time.Time,
) *ingestion.Event {
	t.Helper()

	return &ingestion.Event{
		EventID:   uuid.New(),
		EventType: ingestion.EventTypeSetCompleted,
		Payload: mustPayload(t, ingestion.SetCompletedPayload{
			WorkoutID:   workoutID,
			ExerciseID:  exerciseID,
			SetID:       uuid.New(),
			Reps:        reps,
			Weight:      weight,
			CompletedAt: completedAt,
		}),
		UserID:         userID,
		DeviceID:       deviceID,
		SequenceNumber: seq,
		CreatedAt:      time.Now().UTC(),
	}
}

// ingest stores events in the log and applies them to the projections, the
// same order the sync service uses.
func (env *storageTestEnv) ingest(ctx context.Context, t *testing.T, events ...*ingestion.Event) {
	t.Helper()

	require.NoError(t, env.events.InsertEvents(ctx, events), "Failed to insert events")
	require.NoError(t, env.projections.Apply(ctx, events), "Failed to apply events")
}
