package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/repsync-io/repsync/internal/api/middleware"
	"github.com/repsync-io/repsync/internal/ingestion"
)

// handleSync ingests a batch of workout events from one device.
//
// POST /api/v1/sync
//
// Response codes:
//   - 200 OK: at least one event accepted; body carries the ack cursor
//   - 400 Bad Request: malformed body, batch-level validation failure, or no
//     event in the batch was accepted
//   - 403 Forbidden: body user_id does not match the authenticated user
//   - 503 Service Unavailable: event store unreachable
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}

	if userCtx, ok := middleware.GetUserContext(r.Context()); ok && req.UserID != userCtx.UserID {
		WriteErrorResponse(w, r, s.logger, Forbidden("user_id does not match the authenticated user"))

		return
	}

	correlationID := middleware.GetCorrelationID(r.Context())

	batch := &ingestion.Batch{
		DeviceID: req.DeviceID,
		UserID:   req.UserID,
		Events:   make([]*ingestion.Event, 0, len(req.Events)),
	}

	now := time.Now().UTC()

	for _, e := range req.Events {
		createdAt := now
		if e.CreatedAt != nil {
			createdAt = e.CreatedAt.UTC()
		}

		batch.Events = append(batch.Events, &ingestion.Event{
			EventID:        e.EventID,
			EventType:      ingestion.EventType(e.EventType),
			Payload:        e.Payload,
			SequenceNumber: e.SequenceNumber,
			CorrelationID:  correlationID,
			CreatedAt:      createdAt,
		})
	}

	result, err := s.deps.Sync.Sync(r.Context(), batch)
	if err != nil {
		s.writeSyncError(w, r, err)

		return
	}

	// A nil ack means nothing was accepted; the client must not discard
	// anything locally, so the sync as a whole is a failure.
	if result.Ack == nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("no events were accepted"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, toSyncResponse(result))
}

func (s *Server) writeSyncError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ingestion.ErrEmptyBatch),
		errors.Is(err, ingestion.ErrMissingDeviceID),
		errors.Is(err, ingestion.ErrMissingUserID),
		errors.Is(err, ingestion.ErrMissingEventID),
		errors.Is(err, ingestion.ErrNonPositiveSequence),
		errors.Is(err, ingestion.ErrNonMonotonicBatch):
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
	case errors.Is(err, ingestion.ErrStorageUnavailable):
		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("Event store is temporarily unavailable"))
	default:
		correlationID := middleware.GetCorrelationID(r.Context())

		s.logger.Error("sync failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to process sync batch"))
	}
}

// uuidPathValue parses a uuid path parameter registered as {name} in the route
// pattern. A false return means the error response has already been written.
func (s *Server) uuidPathValue(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid "+name+" path parameter"))

		return uuid.Nil, false
	}

	return id, true
}
