// Package main provides the repsync API server.
//
// repsync is the server side of an offline-first workout tracker: devices
// record workout events locally and sync them in idempotent batches, the
// server projects them into queryable workouts, sets and weekly metrics.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/repsync-io/repsync/internal/api"
	"github.com/repsync-io/repsync/internal/api/middleware"
	"github.com/repsync-io/repsync/internal/catalog"
	"github.com/repsync-io/repsync/internal/identity"
	"github.com/repsync-io/repsync/internal/ingestion"
	"github.com/repsync-io/repsync/internal/reports"
	"github.com/repsync-io/repsync/internal/storage"
	"github.com/repsync-io/repsync/internal/stream"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "repsync"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting repsync service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Load rate limiter configuration
	middlewareConfig := middleware.LoadConfig()

	// Create rate limiter instance (graceful shutdown handled by server.shutdown())
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("user_rps", middlewareConfig.UserRPS),
		slog.Int("unauth_rps", middlewareConfig.UnAuthRPS),
	)

	// Load storage configuration
	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Database connection established",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
	)

	deps, publisher, err := buildDependencies(dbConn, logger)
	if err != nil {
		logger.Error("Failed to initialize stores", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	if publisher != nil {
		defer func() {
			_ = publisher.Close()
		}()
	}

	server := api.NewServer(serverConfig, deps, rateLimiter)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("repsync service stopped")
}

// buildDependencies wires stores and services on top of the database
// connection. The returned publisher is nil when Kafka is not configured.
func buildDependencies(dbConn *storage.Connection, logger *slog.Logger) (*api.Dependencies, *stream.Publisher, error) {
	eventStore, err := storage.NewEventStore(dbConn, logger)
	if err != nil {
		return nil, nil, err
	}

	metricsStore, err := storage.NewMetricsStore(dbConn, logger)
	if err != nil {
		return nil, nil, err
	}

	projectionStore, err := storage.NewProjectionStore(dbConn, metricsStore, logger)
	if err != nil {
		return nil, nil, err
	}

	userStore, err := storage.NewUserStore(dbConn, logger)
	if err != nil {
		return nil, nil, err
	}

	catalogStore, err := storage.NewCatalogStore(dbConn, logger)
	if err != nil {
		return nil, nil, err
	}

	reportStore, err := storage.NewReportStore(dbConn)
	if err != nil {
		return nil, nil, err
	}

	// Apply optional YAML catalog extensions on top of the seeded catalog.
	// A missing or unreadable extension file degrades to the base catalog.
	catalogConfig, err := catalog.LoadConfigFromEnv()
	if err == nil {
		if entries := catalogConfig.Entries(); len(entries) > 0 {
			if err := catalogStore.EnsureExercises(context.Background(), entries); err != nil {
				logger.Warn("Failed to apply catalog extensions", slog.String("error", err.Error()))
			} else {
				logger.Info("Catalog extensions applied", slog.Int("exercises", len(entries)))
			}
		}
	}

	// Kafka publishing is optional; the sync path works without it.
	var publisher *stream.Publisher

	streamConfig := stream.LoadConfig()
	if streamConfig.Enabled() {
		publisher = stream.NewPublisher(streamConfig, logger)

		logger.Info("Event stream publisher enabled",
			slog.Any("brokers", streamConfig.Brokers),
			slog.String("topic", streamConfig.EventsTopic),
		)
	} else {
		logger.Warn("Kafka brokers not configured - event stream publishing disabled")
	}

	var ingestionPublisher ingestion.Publisher
	if publisher != nil {
		ingestionPublisher = publisher
	}

	syncService := ingestion.NewSyncService(eventStore, projectionStore, ingestionPublisher, logger)
	identityService := identity.NewService(userStore, logger)
	reportService := reports.NewService(reportStore, metricsStore, nil, logger)

	return &api.Dependencies{
		Sync:      syncService,
		Workouts:  projectionStore,
		Rebuilder: projectionStore,
		Metrics:   metricsStore,
		Reports:   reportService,
		Users:     identityService,
		Catalog:   catalogStore,
		DB:        dbConn,
	}, publisher, nil
}
