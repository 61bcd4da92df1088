package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/repsync-io/repsync/internal/ingestion"
)

// Compile-time interface compliance check.
var _ ingestion.Store = (*EventStore)(nil)

const eventInsertColumns = 7

// EventStore persists workout events in the append-only events table.
type EventStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewEventStore creates an EventStore.
//
// Returns ErrNoDatabaseConnection if conn is nil.
func NewEventStore(conn *Connection, logger *slog.Logger) (*EventStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &EventStore{conn: conn, logger: logger}, nil
}

// ExistingEventIDs returns the subset of ids already present in the log.
// Single query regardless of batch size.
func (s *EventStore) ExistingEventIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]bool{}, nil
	}

	idStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		idStrings = append(idStrings, id.String())
	}

	query := `SELECT event_id FROM events WHERE event_id = ANY($1)`

	rows, err := s.conn.QueryContext(ctx, query, pq.Array(idStrings))
	if err != nil {
		return nil, s.classify(fmt.Errorf("existing event id query failed: %w", err))
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[uuid.UUID]bool, len(ids))

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}

		existing[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event id iteration failed: %w", err)
	}

	return existing, nil
}

// InsertEvents atomically inserts all events in one statement inside one
// transaction. Any event_id collision rolls back the whole insert and
// surfaces ingestion.ErrDuplicateEvent so the caller can retry per event.
func (s *EventStore) InsertEvents(ctx context.Context, events []*ingestion.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() { _ = tx.Rollback() }()

	var (
		placeholders []string
		args         []any
	)

	for i, event := range events {
		base := i * eventInsertColumns
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			event.EventID,
			string(event.EventType),
			[]byte(event.Payload),
			event.UserID,
			event.DeviceID,
			event.SequenceNumber,
			nullString(event.CorrelationID),
		)
	}

	query := `
		INSERT INTO events (event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: batch insert collided", ingestion.ErrDuplicateEvent)
		}

		return s.classify(fmt.Errorf("batch event insert failed: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return s.classify(fmt.Errorf("failed to commit event batch: %w", err))
	}

	return nil
}

// InsertEvent inserts a single event, returning ingestion.ErrDuplicateEvent
// when the event_id already exists.
func (s *EventStore) InsertEvent(ctx context.Context, event *ingestion.Event) error {
	query := `
		INSERT INTO events (event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.conn.ExecContext(ctx, query,
		event.EventID,
		string(event.EventType),
		[]byte(event.Payload),
		event.UserID,
		event.DeviceID,
		event.SequenceNumber,
		nullString(event.CorrelationID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ingestion.ErrDuplicateEvent, event.EventID)
		}

		return s.classify(fmt.Errorf("event insert failed: %w", err))
	}

	return nil
}

// HealthCheck verifies the underlying connection.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

func (s *EventStore) classify(err error) error {
	if isConnectionError(err) {
		s.logger.Error("database connection error", slog.String("error", err.Error()))

		return fmt.Errorf("%w: %s", ingestion.ErrStorageUnavailable, err.Error())
	}

	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
