package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repsync-io/repsync/internal/reports"
)

func TestReportStore_SaveAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	monday := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	_, err := env.reports.GetReport(ctx, user.UserID, monday)
	require.ErrorIs(t, err, reports.ErrReportNotFound)

	require.NoError(t, env.reports.SaveReport(ctx, &reports.WeeklyReport{
		UserID:      user.UserID,
		WeekStart:   monday,
		ReportText:  "first draft",
		GeneratedAt: time.Now().UTC(),
	}))

	report, err := env.reports.GetReport(ctx, user.UserID, monday)
	require.NoError(t, err)
	assert.Equal(t, "first draft", report.ReportText)
	assert.True(t, report.WeekStart.Equal(monday))

	// Saving again for the same week replaces the text.
	require.NoError(t, env.reports.SaveReport(ctx, &reports.WeeklyReport{
		UserID:      user.UserID,
		WeekStart:   monday,
		ReportText:  "second draft",
		GeneratedAt: time.Now().UTC(),
	}))

	report, err = env.reports.GetReport(ctx, user.UserID, monday)
	require.NoError(t, err)
	assert.Equal(t, "second draft", report.ReportText)
}

func TestReportStore_WeekNormalization(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	monday := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	saturday := monday.AddDate(0, 0, 5).Add(20 * time.Hour)

	// Saved mid-week, keyed by the Monday.
	require.NoError(t, env.reports.SaveReport(ctx, &reports.WeeklyReport{
		UserID:      user.UserID,
		WeekStart:   saturday,
		ReportText:  "weekend entry",
		GeneratedAt: time.Now().UTC(),
	}))

	report, err := env.reports.GetReport(ctx, user.UserID, monday)
	require.NoError(t, err)
	assert.Equal(t, "weekend entry", report.ReportText)
	assert.True(t, report.WeekStart.Equal(monday))
}

func TestReportStore_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	env := setupStorageTest(ctx, t)

	user := env.createAnonymousUser(ctx, t)
	monday := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	require.NoError(t, env.reports.SaveReport(ctx, &reports.WeeklyReport{
		UserID:      user.UserID,
		WeekStart:   monday,
		ReportText:  "to be removed",
		GeneratedAt: time.Now().UTC(),
	}))

	require.NoError(t, env.reports.DeleteReport(ctx, user.UserID, monday))

	_, err := env.reports.GetReport(ctx, user.UserID, monday)
	require.ErrorIs(t, err, reports.ErrReportNotFound)

	// Deleting an absent report is a no-op.
	require.NoError(t, env.reports.DeleteReport(ctx, user.UserID, monday))
}
