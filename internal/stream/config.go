// Package stream provides Kafka connectivity for the repsync service: an
// optional publisher that emits accepted workout events for downstream
// consumers, and a consumer that ingests sync batches from a topic.
package stream

import (
	"github.com/repsync-io/repsync/internal/config"
)

const (
	defaultEventsTopic  = "workout-events"
	defaultBatchesTopic = "sync-batches"
	defaultGroupID      = "repsync-ingester"
)

// Config holds Kafka connection settings.
type Config struct {
	Brokers      []string
	EventsTopic  string // accepted events are published here
	BatchesTopic string // sync batches are consumed from here
	GroupID      string
}

// LoadConfig loads Kafka configuration from environment variables.
// An empty broker list means streaming is disabled.
func LoadConfig() *Config {
	return &Config{
		Brokers:      config.ParseCommaSeparatedList(config.GetEnvStr("REPSYNC_KAFKA_BROKERS", "")),
		EventsTopic:  config.GetEnvStr("REPSYNC_KAFKA_EVENTS_TOPIC", defaultEventsTopic),
		BatchesTopic: config.GetEnvStr("REPSYNC_KAFKA_BATCHES_TOPIC", defaultBatchesTopic),
		GroupID:      config.GetEnvStr("REPSYNC_KAFKA_GROUP_ID", defaultGroupID),
	}
}

// Enabled reports whether brokers are configured.
func (c *Config) Enabled() bool {
	return len(c.Brokers) > 0
}
