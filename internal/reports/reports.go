// Package reports generates weekly textual training reports from weekly
// metrics.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/repsync-io/repsync/internal/metrics"
)

// ErrReportNotFound indicates no stored report exists for the (user, week) pair.
var ErrReportNotFound = errors.New("weekly report not found")

type (
	// WeeklyReport is a stored textual summary of one user's training week.
	WeeklyReport struct {
		UserID      uuid.UUID
		WeekStart   time.Time
		ReportText  string
		GeneratedAt time.Time
	}

	// Generator produces report text from weekly metrics. The default is a
	// deterministic template; richer generators (LLM-backed, localized) plug
	// in behind the same interface.
	Generator interface {
		Generate(m *metrics.WeeklyMetrics) string
	}

	// Store persists weekly reports.
	Store interface {
		// GetReport returns the stored report or ErrReportNotFound.
		GetReport(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*WeeklyReport, error)

		// SaveReport upserts the report for (user, week).
		SaveReport(ctx context.Context, report *WeeklyReport) error

		// DeleteReport removes the report for (user, week) if present.
		DeleteReport(ctx context.Context, userID uuid.UUID, weekStart time.Time) error
	}

	// Service serves weekly reports, generating them on demand from metrics.
	Service struct {
		store     Store
		metrics   metrics.Store
		generator Generator
		logger    *slog.Logger
	}
)

// NewService creates a report service. If generator is nil the template
// generator is used.
func NewService(store Store, metricsStore metrics.Store, generator Generator, logger *slog.Logger) *Service {
	if generator == nil {
		generator = TemplateGenerator{}
	}

	return &Service{
		store:     store,
		metrics:   metricsStore,
		generator: generator,
		logger:    logger,
	}
}

// GetOrGenerate returns the stored report for the week, generating and storing
// one from the current weekly metrics when absent.
func (s *Service) GetOrGenerate(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*WeeklyReport, error) {
	report, err := s.store.GetReport(ctx, userID, weekStart)
	if err == nil {
		return report, nil
	}

	if !errors.Is(err, ErrReportNotFound) {
		return nil, fmt.Errorf("report lookup failed: %w", err)
	}

	return s.generate(ctx, userID, weekStart)
}

// Regenerate discards any stored report for the week and generates a fresh one.
func (s *Service) Regenerate(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*WeeklyReport, error) {
	if err := s.store.DeleteReport(ctx, userID, weekStart); err != nil {
		return nil, fmt.Errorf("report delete failed: %w", err)
	}

	return s.generate(ctx, userID, weekStart)
}

func (s *Service) generate(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*WeeklyReport, error) {
	m, err := s.metrics.GetWeek(ctx, userID, weekStart)
	if errors.Is(err, metrics.ErrMetricsNotFound) {
		m, err = s.metrics.CalculateWeek(ctx, userID, weekStart)
	}

	if err != nil {
		return nil, fmt.Errorf("metrics for report failed: %w", err)
	}

	report := &WeeklyReport{
		UserID:      userID,
		WeekStart:   weekStart,
		ReportText:  s.generator.Generate(m),
		GeneratedAt: time.Now().UTC(),
	}

	if err := s.store.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("report save failed: %w", err)
	}

	s.logger.Info("weekly report generated",
		slog.String("user_id", userID.String()),
		slog.String("week_start", weekStart.Format(time.DateOnly)),
	)

	return report, nil
}

// TemplateGenerator renders a deterministic plain-text report.
type TemplateGenerator struct{}

// Generate implements Generator.
func (TemplateGenerator) Generate(m *metrics.WeeklyMetrics) string {
	if m.TotalWorkouts == 0 {
		return fmt.Sprintf(
			"Week of %s: no completed workouts. Time to get back on track!",
			m.WeekStart.Format(time.DateOnly),
		)
	}

	return fmt.Sprintf(
		"Week of %s: %d workout(s) completed, %.1f total volume across %d exercise(s). Keep it up!",
		m.WeekStart.Format(time.DateOnly),
		m.TotalWorkouts,
		m.TotalVolume,
		m.ExercisesCount,
	)
}
