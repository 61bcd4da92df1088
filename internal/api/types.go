package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/repsync-io/repsync/internal/catalog"
	"github.com/repsync-io/repsync/internal/identity"
	"github.com/repsync-io/repsync/internal/ingestion"
	"github.com/repsync-io/repsync/internal/metrics"
	"github.com/repsync-io/repsync/internal/projection"
	"github.com/repsync-io/repsync/internal/reports"
)

// Wire types for the JSON API. Field names follow the client protocol and are
// kept separate from the domain types so the wire format can evolve without
// touching domain code.

type (
	// SyncEventRequest is one event inside a sync batch.
	SyncEventRequest struct {
		EventID        uuid.UUID       `json:"event_id"`
		EventType      string          `json:"event_type"`
		Payload        json.RawMessage `json:"payload"`
		SequenceNumber int64           `json:"sequence_number"`
		CreatedAt      *time.Time      `json:"created_at,omitempty"`
	}

	// SyncRequest is the body of POST /api/v1/sync.
	SyncRequest struct {
		DeviceID string             `json:"device_id"`
		UserID   uuid.UUID          `json:"user_id"`
		Events   []SyncEventRequest `json:"events"`
	}

	// AckCursorResponse tells the client which events it may discard.
	AckCursorResponse struct {
		DeviceID          string `json:"device_id"`
		LastAckedSequence int64  `json:"last_acked_sequence"`
	}

	// SyncResponse is the body of a successful sync.
	SyncResponse struct {
		AcceptedCount    int                `json:"accepted_count"`
		RejectedCount    int                `json:"rejected_count"`
		RejectedEventIDs []uuid.UUID        `json:"rejected_event_ids"`
		Ack              *AckCursorResponse `json:"ack_cursor"`
	}

	// ExerciseRefResponse names an exercise inside a workout summary.
	ExerciseRefResponse struct {
		ExerciseID uuid.UUID `json:"exercise_id"`
		Name       string    `json:"name"`
	}

	// WorkoutResponse is a projected workout with list-view aggregates.
	WorkoutResponse struct {
		WorkoutID   uuid.UUID             `json:"workout_id"`
		UserID      uuid.UUID             `json:"user_id"`
		StartedAt   time.Time             `json:"started_at"`
		EndedAt     *time.Time            `json:"ended_at"`
		Status      string                `json:"status"`
		SetsCount   int                   `json:"sets_count"`
		TotalVolume float64               `json:"total_volume"`
		Exercises   []ExerciseRefResponse `json:"exercises"`
	}

	// SetResponse is a projected set.
	SetResponse struct {
		SetID       uuid.UUID `json:"set_id"`
		WorkoutID   uuid.UUID `json:"workout_id"`
		ExerciseID  uuid.UUID `json:"exercise_id"`
		Reps        *int      `json:"reps"`
		Weight      *float64  `json:"weight"`
		CompletedAt time.Time `json:"completed_at"`
		Volume      float64   `json:"volume"`
	}

	// BatchSetsResponse maps workout ids to their sets.
	BatchSetsResponse struct {
		SetsByWorkout map[uuid.UUID][]SetResponse `json:"sets_by_workout"`
	}

	// ExerciseResponse is one exercise catalog entry.
	ExerciseResponse struct {
		ExerciseID     uuid.UUID `json:"exercise_id"`
		Name           string    `json:"name"`
		MuscleCategory string    `json:"muscle_category"`
	}

	// WeeklyMetricsResponse is one user-week metrics row.
	WeeklyMetricsResponse struct {
		UserID         uuid.UUID `json:"user_id"`
		WeekStart      string    `json:"week_start"`
		TotalWorkouts  int       `json:"total_workouts"`
		TotalVolume    float64   `json:"total_volume"`
		ExercisesCount int       `json:"exercises_count"`
	}

	// WeeklyReportResponse is one stored weekly report.
	WeeklyReportResponse struct {
		UserID      uuid.UUID `json:"user_id"`
		WeekStart   string    `json:"week_start"`
		ReportText  string    `json:"report_text"`
		GeneratedAt time.Time `json:"generated_at"`
	}

	// UserResponse is a user account with its optional training profile.
	UserResponse struct {
		UserID      uuid.UUID `json:"user_id"`
		IsAnonymous bool      `json:"is_anonymous"`
		Gender      *string   `json:"gender"`
		Age         *int      `json:"age"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// ProfileRequest is the body of PUT /api/v1/users/me/profile.
	ProfileRequest struct {
		Gender *string `json:"gender"`
		Age    *int    `json:"age"`
	}

	// MergeRequest is the body of POST /api/v1/users/merge. The merge target
	// is the authenticated caller, never part of the body.
	MergeRequest struct {
		AnonymousUserID uuid.UUID `json:"anonymous_user_id"`
	}

	// MergeResponse reports what an account merge moved.
	MergeResponse struct {
		Merged          bool   `json:"merged"`
		Message         string `json:"message,omitempty"`
		EventsUpdated   int    `json:"events_updated"`
		WorkoutsUpdated int    `json:"workouts_updated"`
		MetricsUpdated  int    `json:"metrics_updated"`
		ReportsUpdated  int    `json:"reports_updated"`
	}

	// MessageResponse is a generic one-line JSON acknowledgement.
	MessageResponse struct {
		Message string `json:"message"`
	}
)

// toSyncResponse maps a domain sync result to the wire format.
// RejectedEventIDs is always a JSON array, never null.
func toSyncResponse(result *ingestion.SyncResult) SyncResponse {
	resp := SyncResponse{
		AcceptedCount:    result.AcceptedCount,
		RejectedCount:    result.RejectedCount,
		RejectedEventIDs: result.RejectedEventIDs,
	}

	if resp.RejectedEventIDs == nil {
		resp.RejectedEventIDs = []uuid.UUID{}
	}

	if result.Ack != nil {
		resp.Ack = &AckCursorResponse{
			DeviceID:          result.Ack.DeviceID,
			LastAckedSequence: result.Ack.LastAckedSequence,
		}
	}

	return resp
}

func toWorkoutResponse(summary *projection.WorkoutSummary) WorkoutResponse {
	exercises := make([]ExerciseRefResponse, 0, len(summary.Exercises))
	for _, ref := range summary.Exercises {
		exercises = append(exercises, ExerciseRefResponse{
			ExerciseID: ref.ExerciseID,
			Name:       ref.Name,
		})
	}

	return WorkoutResponse{
		WorkoutID:   summary.WorkoutID,
		UserID:      summary.UserID,
		StartedAt:   summary.StartedAt,
		EndedAt:     summary.EndedAt,
		Status:      string(summary.Status),
		SetsCount:   summary.SetsCount,
		TotalVolume: summary.TotalVolume,
		Exercises:   exercises,
	}
}

func toSetResponses(sets []*projection.Set) []SetResponse {
	responses := make([]SetResponse, 0, len(sets))
	for _, set := range sets {
		responses = append(responses, SetResponse{
			SetID:       set.SetID,
			WorkoutID:   set.WorkoutID,
			ExerciseID:  set.ExerciseID,
			Reps:        set.Reps,
			Weight:      set.Weight,
			CompletedAt: set.CompletedAt,
			Volume:      set.Volume(),
		})
	}

	return responses
}

func toExerciseResponses(exercises []*catalog.Exercise) []ExerciseResponse {
	responses := make([]ExerciseResponse, 0, len(exercises))
	for _, exercise := range exercises {
		responses = append(responses, ExerciseResponse{
			ExerciseID:     exercise.ExerciseID,
			Name:           exercise.Name,
			MuscleCategory: exercise.MuscleCategory,
		})
	}

	return responses
}

func toMetricsResponse(m *metrics.WeeklyMetrics) WeeklyMetricsResponse {
	return WeeklyMetricsResponse{
		UserID:         m.UserID,
		WeekStart:      m.WeekStart.Format(time.DateOnly),
		TotalWorkouts:  m.TotalWorkouts,
		TotalVolume:    m.TotalVolume,
		ExercisesCount: m.ExercisesCount,
	}
}

func toReportResponse(report *reports.WeeklyReport) WeeklyReportResponse {
	return WeeklyReportResponse{
		UserID:      report.UserID,
		WeekStart:   report.WeekStart.Format(time.DateOnly),
		ReportText:  report.ReportText,
		GeneratedAt: report.GeneratedAt,
	}
}

func toUserResponse(user *identity.User) UserResponse {
	return UserResponse{
		UserID:      user.UserID,
		IsAnonymous: user.IsAnonymous,
		Gender:      user.Gender,
		Age:         user.Age,
		CreatedAt:   user.CreatedAt,
	}
}

func toMergeResponse(result *identity.MergeResult) MergeResponse {
	return MergeResponse{
		Merged:          result.Merged,
		Message:         result.Message,
		EventsUpdated:   result.EventsUpdated,
		WorkoutsUpdated: result.WorkoutsUpdated,
		MetricsUpdated:  result.MetricsUpdated,
		ReportsUpdated:  result.ReportsUpdated,
	}
}
