package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// SyncService ingests event batches from devices.
//
// The sync contract is idempotent: clients may re-send a batch any number of
// times and observe the same ack. Acceptance is decided per event; only
// batch-level sequence violations reject a batch wholesale.
type SyncService struct {
	store     Store
	validator *Validator
	projector Projector
	publisher Publisher
	logger    *slog.Logger
}

// NewSyncService creates a sync service.
//
// projector is required. publisher may be nil when event streaming is not
// configured.
func NewSyncService(store Store, projector Projector, publisher Publisher, logger *slog.Logger) *SyncService {
	return &SyncService{
		store:     store,
		validator: NewValidator(),
		projector: projector,
		publisher: publisher,
		logger:    logger,
	}
}

// Sync processes one batch from one device.
//
// Steps:
//  1. Batch validation (identity fields, strictly increasing sequence numbers).
//  2. Single-query probe for already-stored event ids.
//  3. Per-event payload validation; invalid events are rejected individually,
//     valid already-stored ones count as accepted duplicates.
//  4. Atomic insert of the remaining events, with a per-event fallback when a
//     concurrent sync already inserted some of them.
//  5. Projection update and optional stream publish for newly stored events.
//     Failures there are logged, never surfaced: the events are already
//     durable in the log.
//
// The returned SyncResult has a nil Ack when nothing was accepted.
func (s *SyncService) Sync(ctx context.Context, batch *Batch) (*SyncResult, error) {
	if err := s.validator.ValidateBatch(batch); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(batch.Events))
	for _, event := range batch.Events {
		ids = append(ids, event.EventID)
	}

	existing, err := s.store.ExistingEventIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("idempotency probe failed: %w", err)
	}

	result := &SyncResult{}

	var (
		staged []*Event
		maxSeq int64
		acked  bool
	)

	accept := func(seq int64) {
		result.AcceptedCount++

		if !acked || seq > maxSeq {
			maxSeq = seq
			acked = true
		}
	}

	for _, event := range batch.Events {
		event.UserID = batch.UserID
		event.DeviceID = batch.DeviceID

		// Validation runs before duplicate classification: a re-sent event_id
		// carrying a broken payload is a client bug and must be rejected, not
		// waved through as an idempotent accept.
		if err := s.validator.ValidateEvent(event); err != nil {
			s.logger.Warn("rejecting event",
				slog.String("event_id", event.EventID.String()),
				slog.String("event_type", string(event.EventType)),
				slog.String("device_id", batch.DeviceID),
				slog.String("reason", err.Error()),
			)

			result.RejectedCount++
			result.RejectedEventIDs = append(result.RejectedEventIDs, event.EventID)

			continue
		}

		if existing[event.EventID] {
			accept(event.SequenceNumber)

			continue
		}

		staged = append(staged, event)
	}

	inserted, err := s.insertStaged(ctx, staged, result, accept)
	if err != nil {
		return nil, err
	}

	if acked {
		result.Ack = &AckCursor{
			DeviceID:          batch.DeviceID,
			LastAckedSequence: maxSeq,
		}
	}

	s.project(ctx, inserted)
	s.publish(ctx, inserted)

	return result, nil
}

// insertStaged stores validated events, preferring a single atomic insert and
// degrading to per-event inserts when a duplicate race is detected. Duplicates
// found during the fallback are accepted; any other insert failure rejects the
// remaining staged events and aborts the sync.
func (s *SyncService) insertStaged(
	ctx context.Context,
	staged []*Event,
	result *SyncResult,
	accept func(int64),
) ([]*Event, error) {
	if len(staged) == 0 {
		return nil, nil
	}

	err := s.store.InsertEvents(ctx, staged)
	if err == nil {
		for _, event := range staged {
			accept(event.SequenceNumber)
		}

		return staged, nil
	}

	if !errors.Is(err, ErrDuplicateEvent) {
		return nil, fmt.Errorf("batch insert failed: %w", err)
	}

	s.logger.Info("duplicate detected during batch insert, retrying per event",
		slog.Int("staged", len(staged)),
	)

	inserted := make([]*Event, 0, len(staged))

	for i, event := range staged {
		insertErr := s.store.InsertEvent(ctx, event)

		switch {
		case insertErr == nil:
			inserted = append(inserted, event)
			accept(event.SequenceNumber)
		case errors.Is(insertErr, ErrDuplicateEvent):
			// Lost the race to a concurrent sync of the same batch. The event
			// is durable either way.
			accept(event.SequenceNumber)
		default:
			for _, rest := range staged[i:] {
				result.RejectedCount++
				result.RejectedEventIDs = append(result.RejectedEventIDs, rest.EventID)
			}

			return inserted, fmt.Errorf("event insert failed: %w", insertErr)
		}
	}

	return inserted, nil
}

// project hands newly stored events to the projection updater in
// (device_id, sequence_number) order. Events are already durable, so a
// projection failure is logged and the read models catch up on the next sync
// or a full rebuild.
func (s *SyncService) project(ctx context.Context, events []*Event) {
	if len(events) == 0 {
		return
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].DeviceID != events[j].DeviceID {
			return events[i].DeviceID < events[j].DeviceID
		}

		return events[i].SequenceNumber < events[j].SequenceNumber
	})

	if err := s.projector.Apply(ctx, events); err != nil {
		s.logger.Error("projection update failed, read models are stale until next sync or rebuild",
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SyncService) publish(ctx context.Context, events []*Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}

	if err := s.publisher.PublishAccepted(ctx, events); err != nil {
		s.logger.Warn("failed to publish accepted events",
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
	}
}
