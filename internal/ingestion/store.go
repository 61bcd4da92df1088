package ingestion

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Storage sentinel errors surfaced to the sync service.
var (
	// ErrDuplicateEvent indicates an insert hit an existing event_id.
	// The sync service treats this as an idempotent accept, not a failure.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrStorageUnavailable indicates a database connectivity problem.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store persists workout events in the immutable log.
//
// Implementations must enforce event_id uniqueness and translate unique
// violations into ErrDuplicateEvent so callers can classify races between
// concurrent syncs of the same batch.
type Store interface {
	// ExistingEventIDs returns the subset of ids that are already stored.
	// Used as a single-query idempotency probe before inserting a batch.
	ExistingEventIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)

	// InsertEvents atomically inserts all events. If any event collides on
	// event_id the whole insert fails with ErrDuplicateEvent and the caller
	// falls back to per-event inserts.
	InsertEvents(ctx context.Context, events []*Event) error

	// InsertEvent inserts a single event, returning ErrDuplicateEvent when the
	// event_id already exists.
	InsertEvent(ctx context.Context, event *Event) error
}

// Projector applies accepted events to the read models.
//
// Projection runs after the event log commit; a projection failure never
// un-accepts events.
type Projector interface {
	Apply(ctx context.Context, events []*Event) error
}

// Publisher emits accepted events for downstream consumers.
// Implementations must tolerate being called with an empty slice.
type Publisher interface {
	PublishAccepted(ctx context.Context, events []*Event) error
}
