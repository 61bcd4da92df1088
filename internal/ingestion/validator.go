package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation sentinel errors. Handlers and tests match these with errors.Is.
var (
	// ErrMissingEventID indicates the event has no event_id.
	ErrMissingEventID = errors.New("missing event_id")

	// ErrUnknownEventType indicates the event_type is not one of the supported types.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrInvalidPayload indicates the payload does not match the schema for the event type.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrMissingDeviceID indicates the batch has no device_id.
	ErrMissingDeviceID = errors.New("missing device_id")

	// ErrMissingUserID indicates the batch has no user_id.
	ErrMissingUserID = errors.New("missing user_id")

	// ErrNonPositiveSequence indicates a sequence number that is zero or negative.
	ErrNonPositiveSequence = errors.New("sequence_number must be positive")

	// ErrNonMonotonicBatch indicates sequence numbers within a batch that are
	// not strictly increasing. The whole batch is rejected in this case.
	ErrNonMonotonicBatch = errors.New("sequence numbers must be strictly increasing within a batch")

	// ErrEmptyBatch indicates a sync request with no events.
	ErrEmptyBatch = errors.New("batch contains no events")
)

// Validator validates workout events before they enter the log.
type Validator struct{}

// NewValidator creates a new event validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateBatch validates batch-level invariants: identity fields present and
// sequence numbers strictly increasing in the order the events appear.
//
// A violation here rejects the entire batch; per-event payload problems are
// handled individually by ValidateEvent.
func (v *Validator) ValidateBatch(batch *Batch) error {
	if batch.DeviceID == "" {
		return ErrMissingDeviceID
	}

	if batch.UserID == uuid.Nil {
		return ErrMissingUserID
	}

	if len(batch.Events) == 0 {
		return ErrEmptyBatch
	}

	var prev int64

	for i, event := range batch.Events {
		if event.SequenceNumber <= 0 {
			return fmt.Errorf("%w: got %d", ErrNonPositiveSequence, event.SequenceNumber)
		}

		if i > 0 && event.SequenceNumber <= prev {
			return fmt.Errorf("%w: %d follows %d", ErrNonMonotonicBatch, event.SequenceNumber, prev)
		}

		prev = event.SequenceNumber
	}

	return nil
}

// ValidateEvent validates a single event: known type and well-formed payload.
func (v *Validator) ValidateEvent(event *Event) error {
	if event.EventID == uuid.Nil {
		return ErrMissingEventID
	}

	if !event.EventType.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, event.EventType)
	}

	return v.validatePayload(event)
}

func (v *Validator) validatePayload(event *Event) error {
	switch event.EventType {
	case EventTypeWorkoutStarted:
		var p WorkoutStartedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
		}

		if p.WorkoutID == uuid.Nil || p.StartedAt.IsZero() {
			return fmt.Errorf("%w: WorkoutStarted requires workout_id and started_at", ErrInvalidPayload)
		}

	case EventTypeWorkoutEnded:
		var p WorkoutEndedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
		}

		if p.WorkoutID == uuid.Nil || p.EndedAt.IsZero() {
			return fmt.Errorf("%w: WorkoutEnded requires workout_id and ended_at", ErrInvalidPayload)
		}

	case EventTypeExerciseAdded:
		var p ExerciseAddedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
		}

		if p.WorkoutID == uuid.Nil || p.ExerciseID == uuid.Nil || p.ExerciseName == "" {
			return fmt.Errorf(
				"%w: ExerciseAdded requires workout_id, exercise_id and exercise_name",
				ErrInvalidPayload,
			)
		}

	case EventTypeSetCompleted:
		var p SetCompletedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
		}

		if p.WorkoutID == uuid.Nil || p.ExerciseID == uuid.Nil || p.SetID == uuid.Nil {
			return fmt.Errorf(
				"%w: SetCompleted requires workout_id, exercise_id and set_id",
				ErrInvalidPayload,
			)
		}

		if p.Reps <= 0 {
			return fmt.Errorf("%w: reps must be positive, got %d", ErrInvalidPayload, p.Reps)
		}

		if p.Weight <= 0 {
			return fmt.Errorf("%w: weight must be positive, got %g", ErrInvalidPayload, p.Weight)
		}

		if p.CompletedAt.IsZero() {
			return fmt.Errorf("%w: SetCompleted requires completed_at", ErrInvalidPayload)
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, event.EventType)
	}

	return nil
}
