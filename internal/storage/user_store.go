package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/repsync-io/repsync/internal/identity"
)

// Compile-time interface compliance check.
var _ identity.Store = (*UserStore)(nil)

// UserStore persists users and executes the account merge.
type UserStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewUserStore creates a UserStore.
//
// Returns ErrNoDatabaseConnection if conn is nil.
func NewUserStore(conn *Connection, logger *slog.Logger) (*UserStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &UserStore{conn: conn, logger: logger}, nil
}

// CreateAnonymousUser inserts a fresh anonymous user.
func (s *UserStore) CreateAnonymousUser(ctx context.Context) (*identity.User, error) {
	userID := uuid.New()

	query := `
		INSERT INTO users (user_id, is_anonymous)
		VALUES ($1, TRUE)
		RETURNING user_id, is_anonymous, gender, age, created_at`

	return scanUser(s.conn.QueryRowContext(ctx, query, userID))
}

// GetUser returns the user or identity.ErrUserNotFound.
func (s *UserStore) GetUser(ctx context.Context, userID uuid.UUID) (*identity.User, error) {
	query := `
		SELECT user_id, is_anonymous, gender, age, created_at
		FROM users
		WHERE user_id = $1`

	user, err := scanUser(s.conn.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", identity.ErrUserNotFound, userID)
	}

	return user, err
}

// UpdateProfile stores gender and age for the user.
func (s *UserStore) UpdateProfile(
	ctx context.Context,
	userID uuid.UUID,
	gender *string,
	age *int,
) (*identity.User, error) {
	query := `
		UPDATE users
		SET gender = $2, age = $3
		WHERE user_id = $1
		RETURNING user_id, is_anonymous, gender, age, created_at`

	user, err := scanUser(s.conn.QueryRowContext(ctx, query, userID, gender, age))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", identity.ErrUserNotFound, userID)
	}

	return user, err
}

// CountUserEvents returns how many events the user has logged.
func (s *UserStore) CountUserEvents(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int

	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count user events: %w", err)
	}

	return count, nil
}

// MergeUsers moves everything from anonymousID to realID in one transaction.
//
// Events and workout projections are re-keyed directly. Weekly metrics rows of
// the anonymous user are dropped and the real user's metrics are recomputed
// inside the same transaction, so weeks both users trained in collapse into a
// single correct row instead of colliding on the (user_id, week_start) unique
// constraint. Reports move where the real user has none for that week;
// colliding anonymous reports are discarded. Finally the anonymous user row is
// deleted.
func (s *UserStore) MergeUsers(ctx context.Context, anonymousID, realID uuid.UUID) (*identity.MergeResult, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin merge transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	result := &identity.MergeResult{Merged: true, Message: "users merged"}

	result.EventsUpdated, err = execCount(ctx, tx,
		`UPDATE events SET user_id = $2 WHERE user_id = $1`, anonymousID, realID)
	if err != nil {
		return nil, fmt.Errorf("failed to move events: %w", err)
	}

	result.WorkoutsUpdated, err = execCount(ctx, tx,
		`UPDATE workouts_projection SET user_id = $2 WHERE user_id = $1`, anonymousID, realID)
	if err != nil {
		return nil, fmt.Errorf("failed to move workouts: %w", err)
	}

	result.MetricsUpdated, err = execCount(ctx, tx,
		`DELETE FROM weekly_metrics WHERE user_id = $1`, anonymousID)
	if err != nil {
		return nil, fmt.Errorf("failed to absorb metrics: %w", err)
	}

	result.ReportsUpdated, err = execCount(ctx, tx, `
		UPDATE weekly_reports r
		SET user_id = $2
		WHERE user_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM weekly_reports existing
			WHERE existing.user_id = $2 AND existing.week_start = r.week_start
		  )`, anonymousID, realID)
	if err != nil {
		return nil, fmt.Errorf("failed to move reports: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM weekly_reports WHERE user_id = $1`, anonymousID); err != nil {
		return nil, fmt.Errorf("failed to drop colliding reports: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM users WHERE user_id = $1`, anonymousID); err != nil {
		return nil, fmt.Errorf("failed to delete anonymous user: %w", err)
	}

	// Recompute the merged account's weeks before commit so the merge is
	// all-or-nothing.
	if err := rebuildWeeklyMetrics(ctx, tx, realID); err != nil {
		return nil, fmt.Errorf("failed to recompute merged metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}

	return result, nil
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(affected), nil
}

func scanUser(row rowScanner) (*identity.User, error) {
	var (
		user   identity.User
		gender sql.NullString
		age    sql.NullInt64
	)

	if err := row.Scan(&user.UserID, &user.IsAnonymous, &gender, &age, &user.CreatedAt); err != nil {
		return nil, err
	}

	if gender.Valid {
		g := gender.String
		user.Gender = &g
	}

	if age.Valid {
		a := int(age.Int64)
		user.Age = &a
	}

	return &user, nil
}
