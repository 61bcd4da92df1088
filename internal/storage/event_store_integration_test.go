package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repsync-io/repsync/internal/ingestion"
)

func TestEventStore_InsertAndProbe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	userID := uuid.New()
	workoutID := uuid.New()
	now := time.Now().UTC()

	events := []*ingestion.Event{
		workoutStartedEvent(t, userID, "device-1", 1, workoutID, now),
		setCompletedEvent(t, userID, "device-1", 2, workoutID, uuid.New(), 8, 80, now),
		workoutEndedEvent(t, userID, "device-1", 3, workoutID, now.Add(time.Hour)),
	}

	require.NoError(t, env.events.InsertEvents(ctx, events))

	ids := []uuid.UUID{events[0].EventID, events[1].EventID, events[2].EventID, uuid.New()}

	existing, err := env.events.ExistingEventIDs(ctx, ids)
	require.NoError(t, err)

	assert.Len(t, existing, 3, "probe should find exactly the stored events")
	assert.True(t, existing[events[0].EventID])
	assert.True(t, existing[events[1].EventID])
	assert.True(t, existing[events[2].EventID])
	assert.False(t, existing[ids[3]], "unknown event id reported as existing")
}

func TestEventStore_ExistingEventIDs_EmptyInput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	existing, err := env.events.ExistingEventIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestEventStore_BatchInsertIsAtomic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	userID := uuid.New()
	workoutID := uuid.New()
	now := time.Now().UTC()

	stored := workoutStartedEvent(t, userID, "device-1", 1, workoutID, now)
	require.NoError(t, env.events.InsertEvent(ctx, stored))

	fresh := setCompletedEvent(t, userID, "device-1", 2, workoutID, uuid.New(), 8, 80, now)

	// The batch contains one already-stored event, so the whole insert must
	// roll back and surface the duplicate.
	err := env.events.InsertEvents(ctx, []*ingestion.Event{fresh, stored})
	require.ErrorIs(t, err, ingestion.ErrDuplicateEvent)

	existing, err := env.events.ExistingEventIDs(ctx, []uuid.UUID{fresh.EventID})
	require.NoError(t, err)
	assert.Empty(t, existing, "fresh event leaked from a rolled-back batch")
}

func TestEventStore_InsertEvent_Duplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	event := workoutStartedEvent(t, uuid.New(), "device-1", 1, uuid.New(), time.Now().UTC())

	require.NoError(t, env.events.InsertEvent(ctx, event))

	err := env.events.InsertEvent(ctx, event)
	require.ErrorIs(t, err, ingestion.ErrDuplicateEvent)
}

func TestEventStore_UserQueriesAreIndexedByTime(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	var indexDef string

	err := env.conn.QueryRowContext(ctx, `
		SELECT indexdef FROM pg_indexes
		WHERE tablename = 'events' AND indexname = 'idx_events_user_created'`,
	).Scan(&indexDef)
	require.NoError(t, err, "composite user index missing from the events table")

	assert.Contains(t, indexDef, "(user_id, created_at)")
}

func TestEventStore_SequenceSlotTakenOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	userID := uuid.New()
	now := time.Now().UTC()

	first := workoutStartedEvent(t, userID, "device-1", 1, uuid.New(), now)
	require.NoError(t, env.events.InsertEvent(ctx, first))

	// A different event id on the same (device_id, sequence_number) slot is
	// rejected: the log holds at most one event per slot.
	contender := workoutStartedEvent(t, userID, "device-1", 1, uuid.New(), now)
	err := env.events.InsertEvent(ctx, contender)
	require.ErrorIs(t, err, ingestion.ErrDuplicateEvent)

	// Same sequence on another device is fine.
	other := workoutStartedEvent(t, userID, "device-2", 1, uuid.New(), now)
	require.NoError(t, env.events.InsertEvent(ctx, other))
}
