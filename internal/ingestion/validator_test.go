package ingestion

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validSetCompletedEvent(seq int64) *Event {
	payload, _ := json.Marshal(SetCompletedPayload{
		WorkoutID:   uuid.New(),
		ExerciseID:  uuid.New(),
		SetID:       uuid.New(),
		Reps:        8,
		Weight:      80,
		CompletedAt: time.Now().UTC(),
	})

	return &Event{
		EventID:        uuid.New(),
		EventType:      EventTypeSetCompleted,
		Payload:        payload,
		SequenceNumber: seq,
	}
}

func TestValidateBatch_Valid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	batch := &Batch{
		DeviceID: "device-1",
		UserID:   uuid.New(),
		Events:   []*Event{validSetCompletedEvent(1), validSetCompletedEvent(2), validSetCompletedEvent(5)},
	}

	if err := validator.ValidateBatch(batch); err != nil {
		t.Errorf("ValidateBatch() failed for valid batch: %v", err)
	}
}

func TestValidateBatch_GapsAllowed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	batch := &Batch{
		DeviceID: "device-1",
		UserID:   uuid.New(),
		Events:   []*Event{validSetCompletedEvent(3), validSetCompletedEvent(100)},
	}

	if err := validator.ValidateBatch(batch); err != nil {
		t.Errorf("ValidateBatch() should allow sequence gaps, got: %v", err)
	}
}

func TestValidateBatch_Rejections(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()
	userID := uuid.New()

	tests := []struct {
		name    string
		batch   *Batch
		wantErr error
	}{
		{
			name:    "missing device id",
			batch:   &Batch{UserID: userID, Events: []*Event{validSetCompletedEvent(1)}},
			wantErr: ErrMissingDeviceID,
		},
		{
			name:    "missing user id",
			batch:   &Batch{DeviceID: "device-1", Events: []*Event{validSetCompletedEvent(1)}},
			wantErr: ErrMissingUserID,
		},
		{
			name:    "empty batch",
			batch:   &Batch{DeviceID: "device-1", UserID: userID},
			wantErr: ErrEmptyBatch,
		},
		{
			name: "zero sequence",
			batch: &Batch{
				DeviceID: "device-1", UserID: userID,
				Events: []*Event{validSetCompletedEvent(0)},
			},
			wantErr: ErrNonPositiveSequence,
		},
		{
			name: "negative sequence",
			batch: &Batch{
				DeviceID: "device-1", UserID: userID,
				Events: []*Event{validSetCompletedEvent(-4)},
			},
			wantErr: ErrNonPositiveSequence,
		},
		{
			name: "duplicate sequence",
			batch: &Batch{
				DeviceID: "device-1", UserID: userID,
				Events: []*Event{validSetCompletedEvent(2), validSetCompletedEvent(2)},
			},
			wantErr: ErrNonMonotonicBatch,
		},
		{
			name: "decreasing sequence",
			batch: &Batch{
				DeviceID: "device-1", UserID: userID,
				Events: []*Event{validSetCompletedEvent(5), validSetCompletedEvent(3)},
			},
			wantErr: ErrNonMonotonicBatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateBatch(tt.batch)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateBatch() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEvent_MissingEventID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	event := validSetCompletedEvent(1)
	event.EventID = uuid.Nil

	if err := validator.ValidateEvent(event); !errors.Is(err, ErrMissingEventID) {
		t.Errorf("ValidateEvent() = %v, want %v", err, ErrMissingEventID)
	}
}

func TestValidateEvent_UnknownType(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	event := validSetCompletedEvent(1)
	event.EventType = "WorkoutPaused"

	if err := validator.ValidateEvent(event); !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("ValidateEvent() = %v, want %v", err, ErrUnknownEventType)
	}
}

func TestValidateEvent_WorkoutStarted(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	valid, _ := json.Marshal(WorkoutStartedPayload{
		WorkoutID: uuid.New(),
		StartedAt: time.Now().UTC(),
	})
	missingWorkout, _ := json.Marshal(WorkoutStartedPayload{StartedAt: time.Now().UTC()})
	missingTime, _ := json.Marshal(WorkoutStartedPayload{WorkoutID: uuid.New()})

	tests := []struct {
		name    string
		payload json.RawMessage
		wantErr error
	}{
		{"valid", valid, nil},
		{"missing workout_id", missingWorkout, ErrInvalidPayload},
		{"missing started_at", missingTime, ErrInvalidPayload},
		{"malformed json", json.RawMessage(`{`), ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &Event{
				EventID:        uuid.New(),
				EventType:      EventTypeWorkoutStarted,
				Payload:        tt.payload,
				SequenceNumber: 1,
			}

			err := validator.ValidateEvent(event)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidateEvent() unexpected error: %v", err)
			}

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEvent() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEvent_SetCompleted(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	base := SetCompletedPayload{
		WorkoutID:   uuid.New(),
		ExerciseID:  uuid.New(),
		SetID:       uuid.New(),
		Reps:        10,
		Weight:      62.5,
		CompletedAt: time.Now().UTC(),
	}

	tests := []struct {
		name   string
		mutate func(p *SetCompletedPayload)
		valid  bool
	}{
		{"valid", func(_ *SetCompletedPayload) {}, true},
		{"zero reps", func(p *SetCompletedPayload) { p.Reps = 0 }, false},
		{"negative reps", func(p *SetCompletedPayload) { p.Reps = -3 }, false},
		{"zero weight", func(p *SetCompletedPayload) { p.Weight = 0 }, false},
		{"negative weight", func(p *SetCompletedPayload) { p.Weight = -20 }, false},
		{"missing set_id", func(p *SetCompletedPayload) { p.SetID = uuid.Nil }, false},
		{"missing completed_at", func(p *SetCompletedPayload) { p.CompletedAt = time.Time{} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := base
			tt.mutate(&payload)

			data, err := json.Marshal(payload)
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}

			event := &Event{
				EventID:        uuid.New(),
				EventType:      EventTypeSetCompleted,
				Payload:        data,
				SequenceNumber: 1,
			}

			err = validator.ValidateEvent(event)
			if tt.valid && err != nil {
				t.Errorf("ValidateEvent() unexpected error: %v", err)
			}

			if !tt.valid && !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("ValidateEvent() = %v, want %v", err, ErrInvalidPayload)
			}
		})
	}
}

func TestValidateEvent_ExerciseAdded(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	payload, _ := json.Marshal(ExerciseAddedPayload{
		WorkoutID:    uuid.New(),
		ExerciseID:   uuid.New(),
		ExerciseName: "Bench Press",
	})

	event := &Event{
		EventID:        uuid.New(),
		EventType:      EventTypeExerciseAdded,
		Payload:        payload,
		SequenceNumber: 1,
	}

	if err := validator.ValidateEvent(event); err != nil {
		t.Errorf("ValidateEvent() failed for valid ExerciseAdded: %v", err)
	}

	noName, _ := json.Marshal(ExerciseAddedPayload{
		WorkoutID:  uuid.New(),
		ExerciseID: uuid.New(),
	})
	event.Payload = noName

	if err := validator.ValidateEvent(event); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("ValidateEvent() = %v, want %v", err, ErrInvalidPayload)
	}
}

func TestEventType_IsValid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	for _, et := range []EventType{
		EventTypeWorkoutStarted, EventTypeWorkoutEnded, EventTypeExerciseAdded, EventTypeSetCompleted,
	} {
		if !et.IsValid() {
			t.Errorf("IsValid() = false for supported type %q", et)
		}
	}

	for _, et := range []EventType{"", "workout_started", "Unknown"} {
		if et.IsValid() {
			t.Errorf("IsValid() = true for unsupported type %q", et)
		}
	}
}
