package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/repsync-io/repsync/internal/ingestion"
)

// Compile-time interface compliance check.
var _ ingestion.Publisher = (*Publisher)(nil)

// EventEnvelope is the wire format for accepted events on the events topic.
type EventEnvelope struct {
	EventID        uuid.UUID       `json:"event_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	UserID         uuid.UUID       `json:"user_id"`
	DeviceID       string          `json:"device_id"`
	SequenceNumber int64           `json:"sequence_number"`
}

// Publisher emits accepted workout events to Kafka.
//
// Messages are keyed by device id so per-device ordering survives
// partitioning. Publishing is best-effort: the sync service logs failures and
// moves on, since the event log is the system of record.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka publisher for accepted events.
func NewPublisher(config *Config, logger *slog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.EventsTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &Publisher{writer: writer, logger: logger}
}

// PublishAccepted writes one message per accepted event.
func (p *Publisher) PublishAccepted(ctx context.Context, events []*ingestion.Event) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))

	for _, event := range events {
		value, err := json.Marshal(EventEnvelope{
			EventID:        event.EventID,
			EventType:      string(event.EventType),
			Payload:        event.Payload,
			UserID:         event.UserID,
			DeviceID:       event.DeviceID,
			SequenceNumber: event.SequenceNumber,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.EventID, err)
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(event.DeviceID),
			Value: value,
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to write events to kafka: %w", err)
	}

	p.logger.Debug("published accepted events", slog.Int("count", len(messages)))

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
