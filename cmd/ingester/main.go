// Package main provides the repsync Kafka ingester.
//
// The ingester consumes sync batches from the batches topic and feeds them
// through the same sync service the HTTP surface uses, so backfills and
// server-to-server producers get identical idempotency and ordering rules.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/repsync-io/repsync/internal/config"
	"github.com/repsync-io/repsync/internal/ingestion"
	"github.com/repsync-io/repsync/internal/storage"
	"github.com/repsync-io/repsync/internal/stream"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "ingester"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("REPSYNC_INGESTER_LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting repsync ingester",
		slog.String("service", name),
		slog.String("version", version),
	)

	streamConfig := stream.LoadConfig()
	if !streamConfig.Enabled() {
		logger.Error("REPSYNC_KAFKA_BROKERS is required for the ingester")
		os.Exit(1)
	}

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	eventStore, err := storage.NewEventStore(dbConn, logger)
	if err != nil {
		logger.Error("Failed to initialize event store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsStore, err := storage.NewMetricsStore(dbConn, logger)
	if err != nil {
		logger.Error("Failed to initialize metrics store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	projectionStore, err := storage.NewProjectionStore(dbConn, metricsStore, logger)
	if err != nil {
		logger.Error("Failed to initialize projection store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// No publisher here: the ingester consumes batches, it must not write
	// accepted events back onto the stream it reads from.
	syncService := ingestion.NewSyncService(eventStore, projectionStore, nil, logger)

	consumer := stream.NewConsumer(streamConfig, syncService, logger)
	defer func() {
		_ = consumer.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Consuming sync batches",
		slog.Any("brokers", streamConfig.Brokers),
		slog.String("topic", streamConfig.BatchesTopic),
		slog.String("group_id", streamConfig.GroupID),
	)

	if err := consumer.Run(ctx); err != nil {
		logger.Error("Consumer stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("repsync ingester stopped")
}
