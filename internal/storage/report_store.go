package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/repsync-io/repsync/internal/metrics"
	"github.com/repsync-io/repsync/internal/reports"
)

// Compile-time interface compliance check.
var _ reports.Store = (*ReportStore)(nil)

// ReportStore persists weekly reports.
type ReportStore struct {
	conn *Connection
}

// NewReportStore creates a ReportStore.
//
// Returns ErrNoDatabaseConnection if conn is nil.
func NewReportStore(conn *Connection) (*ReportStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &ReportStore{conn: conn}, nil
}

// GetReport returns the stored report or reports.ErrReportNotFound.
func (s *ReportStore) GetReport(
	ctx context.Context,
	userID uuid.UUID,
	weekStart time.Time,
) (*reports.WeeklyReport, error) {
	weekStart = metrics.WeekStart(weekStart)

	query := `
		SELECT user_id, week_start, report_text, generated_at
		FROM weekly_reports
		WHERE user_id = $1 AND week_start = $2`

	var report reports.WeeklyReport

	err := s.conn.QueryRowContext(ctx, query, userID, weekStart).Scan(
		&report.UserID, &report.WeekStart, &report.ReportText, &report.GeneratedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s week %s",
			reports.ErrReportNotFound, userID, weekStart.Format(time.DateOnly))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get weekly report: %w", err)
	}

	report.WeekStart = report.WeekStart.UTC()

	return &report, nil
}

// SaveReport upserts the report for (user, week).
func (s *ReportStore) SaveReport(ctx context.Context, report *reports.WeeklyReport) error {
	query := `
		INSERT INTO weekly_reports (user_id, week_start, report_text, generated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, week_start) DO UPDATE SET
			report_text  = EXCLUDED.report_text,
			generated_at = EXCLUDED.generated_at`

	_, err := s.conn.ExecContext(ctx, query,
		report.UserID,
		metrics.WeekStart(report.WeekStart),
		report.ReportText,
		report.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save weekly report: %w", err)
	}

	return nil
}

// DeleteReport removes the report for (user, week) if present.
func (s *ReportStore) DeleteReport(ctx context.Context, userID uuid.UUID, weekStart time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM weekly_reports WHERE user_id = $1 AND week_start = $2`,
		userID, metrics.WeekStart(weekStart),
	)
	if err != nil {
		return fmt.Errorf("failed to delete weekly report: %w", err)
	}

	return nil
}
