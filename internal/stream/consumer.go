package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/repsync-io/repsync/internal/ingestion"
)

type (
	// BatchMessage is the wire format for sync batches on the batches topic.
	// It mirrors the HTTP sync request body.
	BatchMessage struct {
		DeviceID string       `json:"device_id"`
		UserID   uuid.UUID    `json:"user_id"`
		Events   []BatchEvent `json:"events"`
	}

	// BatchEvent is one event within a BatchMessage.
	BatchEvent struct {
		EventID        uuid.UUID       `json:"event_id"`
		EventType      string          `json:"event_type"`
		Payload        json.RawMessage `json:"payload"`
		SequenceNumber int64           `json:"sequence_number"`
	}

	// Consumer ingests sync batches from Kafka through the same sync service
	// the HTTP surface uses, so idempotency and ordering rules are identical.
	Consumer struct {
		reader *kafka.Reader
		sync   *ingestion.SyncService
		logger *slog.Logger
	}
)

// NewConsumer creates a Kafka consumer for sync batches.
func NewConsumer(config *Config, syncService *ingestion.SyncService, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: config.Brokers,
		Topic:   config.BatchesTopic,
		GroupID: config.GroupID,
	})

	return &Consumer{reader: reader, sync: syncService, logger: logger}
}

// Run consumes batches until the context is cancelled.
//
// Malformed messages and rejected batches are logged and committed anyway:
// re-delivering them can never succeed, and the sync contract already reports
// per-event rejections to the producing side via the event log.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}

		c.handle(ctx, message)

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			c.logger.Error("failed to commit kafka offset", slog.String("error", err.Error()))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, message kafka.Message) {
	var batchMessage BatchMessage

	if err := json.Unmarshal(message.Value, &batchMessage); err != nil {
		c.logger.Warn("discarding malformed sync batch message",
			slog.Int64("offset", message.Offset),
			slog.String("error", err.Error()),
		)

		return
	}

	batch := &ingestion.Batch{
		DeviceID: batchMessage.DeviceID,
		UserID:   batchMessage.UserID,
	}

	for _, e := range batchMessage.Events {
		batch.Events = append(batch.Events, &ingestion.Event{
			EventID:        e.EventID,
			EventType:      ingestion.EventType(e.EventType),
			Payload:        e.Payload,
			SequenceNumber: e.SequenceNumber,
		})
	}

	result, err := c.sync.Sync(ctx, batch)
	if err != nil {
		c.logger.Warn("sync batch from kafka rejected",
			slog.String("device_id", batchMessage.DeviceID),
			slog.String("error", err.Error()),
		)

		return
	}

	c.logger.Info("sync batch from kafka processed",
		slog.String("device_id", batchMessage.DeviceID),
		slog.Int("accepted", result.AcceptedCount),
		slog.Int("rejected", result.RejectedCount),
	)
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
