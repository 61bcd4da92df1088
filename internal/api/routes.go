package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/repsync-io/repsync/internal/api/middleware"
	"github.com/repsync-io/repsync/internal/metrics"
)

const healthCheckTimeout = 2 * time.Second

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}
)

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Health endpoints
	mux.HandleFunc("GET /ping", s.handlePing)     // K8s liveness probe
	mux.HandleFunc("GET /ready", s.handleReady)   // K8s readiness probe
	mux.HandleFunc("GET /health", s.handleHealth) // Basic health check - status, uptime, version
	mux.HandleFunc("/", s.handleNotFound)         // Catch-all handler for 404 responses

	// Event ingestion
	mux.HandleFunc("POST /api/v1/sync", s.handleSync)

	// Users
	mux.HandleFunc("POST /api/v1/users/anonymous", s.handleCreateAnonymousUser)
	mux.HandleFunc("GET /api/v1/users/me", s.handleGetMe)
	mux.HandleFunc("PUT /api/v1/users/me/profile", s.handleUpdateProfile)
	mux.HandleFunc("POST /api/v1/users/merge", s.handleMergeUsers)

	// Workout queries
	mux.HandleFunc("GET /api/v1/workouts", s.handleListWorkouts)
	mux.HandleFunc("GET /api/v1/workouts/{id}/sets", s.handleListWorkoutSets)
	mux.HandleFunc("GET /api/v1/workouts/sets/batch", s.handleBatchWorkoutSets)

	// Exercise catalog and history
	mux.HandleFunc("GET /api/v1/exercises", s.handleListExercises)
	mux.HandleFunc("GET /api/v1/exercises/{id}/last-sets", s.handleLastExerciseSets)

	// Weekly metrics and reports
	mux.HandleFunc("GET /api/v1/metrics/weekly", s.handleWeeklyMetrics)
	mux.HandleFunc("POST /api/v1/metrics/weekly/rebuild", s.handleRebuildWeeklyMetrics)
	mux.HandleFunc("GET /api/v1/reports/weekly", s.handleWeeklyReport)
	mux.HandleFunc("POST /api/v1/reports/weekly/regenerate", s.handleRegenerateReport)

	// Projection maintenance
	mux.HandleFunc("POST /api/v1/projections/rebuild", s.handleRebuildProjections)
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	_, err := w.Write([]byte("pong"))
	if err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to Kubernetes readiness probes with a database health check.
//
// Response codes:
//   - 200 OK: database is healthy and ready to accept traffic
//   - 503 Service Unavailable: database is unhealthy or unreachable
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if s.deps == nil || s.deps.DB == nil {
		s.logger.Warn("Database not configured - readiness check disabled",
			slog.String("correlation_id", correlationID),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)

		if _, err := w.Write([]byte("ready")); err != nil {
			s.logger.Error("Failed to write ready response",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.deps.DB.HealthCheck(ctx); err != nil {
		s.logger.Error("Database health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)

		if _, writeErr := w.Write([]byte("database unavailable")); writeErr != nil {
			s.logger.Error("Failed to write unavailable response",
				slog.String("correlation_id", correlationID),
				slog.String("error", writeErr.Error()),
			)
		}

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("ready")); err != nil {
		s.logger.Error("Failed to write ready response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Calculate uptime if server has started
	var uptime string

	if !s.startTime.IsZero() {
		duration := time.Since(s.startTime)
		uptime = duration.Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: "repsync",
		Version:     "v1.0.0", // TODO: inject version at build time
		Uptime:      uptime,
	}

	s.writeJSON(w, r, http.StatusOK, health)
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}

// writeJSON marshals v and writes it with the given status. Encoding failures
// before the header is sent produce a 500; after that they are only logged.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	correlationID := middleware.GetCorrelationID(r.Context())

	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// decodeJSONBody reads and decodes a JSON request body into dst.
// The body size is capped at the configured MaxRequestSize. A false return
// means the error response has already been written.
func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, BadRequest("Content-Type must be application/json"))

		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w, r, s.logger, BadRequest(
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
			))

			return false
		}

		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON in request body: "+err.Error()))

		return false
	}

	return true
}

// requestUserID resolves the user the request operates on.
//
// The user_id query parameter is authoritative for unauthenticated clients.
// Authenticated clients may omit it; when both are present they must match,
// otherwise the request is rejected with 403. A false return means the error
// response has already been written.
func (s *Server) requestUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var explicit uuid.UUID

	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			WriteErrorResponse(w, r, s.logger, BadRequest("Invalid user_id query parameter"))

			return uuid.Nil, false
		}

		explicit = parsed
	}

	userCtx, authenticated := middleware.GetUserContext(r.Context())

	switch {
	case authenticated && explicit != uuid.Nil && explicit != userCtx.UserID:
		WriteErrorResponse(w, r, s.logger, Forbidden("user_id does not match the authenticated user"))

		return uuid.Nil, false
	case authenticated && explicit == uuid.Nil:
		return userCtx.UserID, true
	case explicit != uuid.Nil:
		return explicit, true
	default:
		WriteErrorResponse(w, r, s.logger, BadRequest("user_id query parameter is required"))

		return uuid.Nil, false
	}
}

// workoutIDsParam parses the required workout_ids query parameter, a
// comma-separated list of workout uuids. Duplicate ids are collapsed so
// callers can compare result lengths against the requested set. A false
// return means the error response has already been written.
func (s *Server) workoutIDsParam(w http.ResponseWriter, r *http.Request) ([]uuid.UUID, bool) {
	raw := r.URL.Query().Get("workout_ids")
	if raw == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("workout_ids query parameter is required"))

		return nil, false
	}

	parts := strings.Split(raw, ",")

	seen := make(map[uuid.UUID]bool, len(parts))
	ids := make([]uuid.UUID, 0, len(parts))

	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			WriteErrorResponse(w, r, s.logger, BadRequest("Invalid workout id in workout_ids: "+part))

			return nil, false
		}

		if seen[id] {
			continue
		}

		seen[id] = true
		ids = append(ids, id)
	}

	return ids, true
}

// weekStartParam parses the optional week_start query parameter (YYYY-MM-DD)
// and normalizes it to the ISO week's Monday. Missing values default to the
// current week. A false return means the error response has already been
// written.
func (s *Server) weekStartParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("week_start")
	if raw == "" {
		return metrics.WeekStart(time.Now().UTC()), true
	}

	parsed, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid week_start, expected YYYY-MM-DD"))

		return time.Time{}, false
	}

	return metrics.WeekStart(parsed), true
}
