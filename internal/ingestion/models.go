// Package ingestion provides workout event ingestion for the repsync service.
//
// Mobile clients record workout events offline and sync them in batches when a
// connection is available. Each event carries a client-generated event_id that
// acts as the idempotency key, and a per-device sequence number that preserves
// the order the user performed actions in.
package ingestion

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of workout event in the log.
type EventType string

// Supported event types.
const (
	EventTypeWorkoutStarted EventType = "WorkoutStarted"
	EventTypeWorkoutEnded   EventType = "WorkoutEnded"
	EventTypeExerciseAdded  EventType = "ExerciseAdded"
	EventTypeSetCompleted   EventType = "SetCompleted"
)

// IsValid reports whether the event type is one of the supported types.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeWorkoutStarted, EventTypeWorkoutEnded, EventTypeExerciseAdded, EventTypeSetCompleted:
		return true
	default:
		return false
	}
}

type (
	// Event is a single immutable entry in the workout event log.
	//
	// EventID is client-generated and globally unique; re-syncing an event with
	// a known EventID is accepted without re-inserting (idempotent sync).
	// SequenceNumber is scoped to DeviceID and must be strictly increasing
	// within a batch; gaps are allowed.
	Event struct {
		EventID        uuid.UUID
		EventType      EventType
		Payload        json.RawMessage
		UserID         uuid.UUID
		DeviceID       string
		SequenceNumber int64
		CorrelationID  string
		CreatedAt      time.Time
	}

	// Batch is a set of events synced from one device in one request.
	Batch struct {
		DeviceID string
		UserID   uuid.UUID
		Events   []*Event
	}

	// AckCursor tells the client which events it may discard locally.
	// LastAckedSequence is the highest sequence number accepted for the device.
	AckCursor struct {
		DeviceID          string
		LastAckedSequence int64
	}

	// SyncResult summarizes the outcome of a batch sync.
	//
	// Ack is nil when no events were accepted; callers treat that as a failed
	// sync since the client must not discard anything.
	SyncResult struct {
		Ack              *AckCursor
		AcceptedCount    int
		RejectedCount    int
		RejectedEventIDs []uuid.UUID
	}
)

type (
	// WorkoutStartedPayload is the payload for WorkoutStarted events.
	WorkoutStartedPayload struct {
		WorkoutID uuid.UUID `json:"workout_id"`
		StartedAt time.Time `json:"started_at"`
	}

	// WorkoutEndedPayload is the payload for WorkoutEnded events.
	WorkoutEndedPayload struct {
		WorkoutID uuid.UUID `json:"workout_id"`
		EndedAt   time.Time `json:"ended_at"`
	}

	// ExerciseAddedPayload is the payload for ExerciseAdded events.
	//
	// ExerciseAdded is retained in the log for client history but does not
	// alter projections; the exercise catalog is authoritative.
	ExerciseAddedPayload struct {
		WorkoutID    uuid.UUID `json:"workout_id"`
		ExerciseID   uuid.UUID `json:"exercise_id"`
		ExerciseName string    `json:"exercise_name"`
	}

	// SetCompletedPayload is the payload for SetCompleted events.
	SetCompletedPayload struct {
		WorkoutID   uuid.UUID `json:"workout_id"`
		ExerciseID  uuid.UUID `json:"exercise_id"`
		SetID       uuid.UUID `json:"set_id"`
		Reps        int       `json:"reps"`
		Weight      float64   `json:"weight"`
		CompletedAt time.Time `json:"completed_at"`
	}
)
