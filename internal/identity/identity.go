// Package identity manages users and the anonymous-to-real account merge.
//
// Users start anonymous (device-local identity) and may later sign up; the
// merge re-keys everything the anonymous user produced onto the real account
// in a single transaction and deletes the anonymous user.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for user lookups and merge preconditions.
var (
	// ErrUserNotFound indicates the user id does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotAnonymous indicates the merge source is not an anonymous user.
	ErrNotAnonymous = errors.New("source user is not anonymous")

	// ErrTargetAnonymous indicates the merge target is itself anonymous.
	ErrTargetAnonymous = errors.New("target user is anonymous")

	// ErrInvalidProfile indicates a profile update with out-of-range values.
	ErrInvalidProfile = errors.New("invalid profile")
)

const (
	minAge = 1
	maxAge = 150
)

type (
	// User is an account, anonymous or real, with an optional training profile.
	User struct {
		UserID      uuid.UUID
		IsAnonymous bool
		Gender      *string
		Age         *int
		CreatedAt   time.Time
	}

	// MergeResult reports what an account merge moved.
	MergeResult struct {
		Merged          bool
		Message         string
		EventsUpdated   int
		WorkoutsUpdated int
		MetricsUpdated  int
		ReportsUpdated  int
	}

	// Store persists users and executes the merge transaction.
	Store interface {
		// CreateAnonymousUser creates and returns a fresh anonymous user.
		CreateAnonymousUser(ctx context.Context) (*User, error)

		// GetUser returns the user or ErrUserNotFound.
		GetUser(ctx context.Context, userID uuid.UUID) (*User, error)

		// UpdateProfile stores gender and age for the user.
		UpdateProfile(ctx context.Context, userID uuid.UUID, gender *string, age *int) (*User, error)

		// CountUserEvents returns the number of events logged by the user.
		CountUserEvents(ctx context.Context, userID uuid.UUID) (int, error)

		// MergeUsers re-keys events, workout projections, weekly metrics and
		// weekly reports from anonymousID to realID, deletes the anonymous
		// user and recomputes the real user's weekly metrics, all in one
		// transaction.
		MergeUsers(ctx context.Context, anonymousID, realID uuid.UUID) (*MergeResult, error)
	}

	// Service wraps merge preconditions and profile validation around the store.
	Service struct {
		store  Store
		logger *slog.Logger
	}
)

// NewService creates an identity service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateAnonymous creates a new anonymous user.
func (s *Service) CreateAnonymous(ctx context.Context) (*User, error) {
	user, err := s.store.CreateAnonymousUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("create anonymous user failed: %w", err)
	}

	s.logger.Info("anonymous user created", slog.String("user_id", user.UserID.String()))

	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.store.GetUser(ctx, userID)
}

// UpdateProfile validates and stores the user's training profile.
// Gender must be "male" or "female"; age must be within 1..150. Either field
// may be nil to leave it unset.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, gender *string, age *int) (*User, error) {
	if gender != nil && *gender != "male" && *gender != "female" {
		return nil, fmt.Errorf("%w: gender must be male or female, got %q", ErrInvalidProfile, *gender)
	}

	if age != nil && (*age < minAge || *age > maxAge) {
		return nil, fmt.Errorf("%w: age must be between %d and %d, got %d", ErrInvalidProfile, minAge, maxAge, *age)
	}

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	return s.store.UpdateProfile(ctx, userID, gender, age)
}

// Merge moves everything the anonymous user produced onto the real user.
//
// Preconditions: both users exist, the source is anonymous, the target is not.
// An anonymous user with zero events is not merged; the call reports
// Merged=false with zero counts and leaves both users untouched. After a
// successful merge the anonymous user is gone, so re-running the merge fails
// with ErrUserNotFound.
func (s *Service) Merge(ctx context.Context, anonymousID, realID uuid.UUID) (*MergeResult, error) {
	anonymous, err := s.store.GetUser(ctx, anonymousID)
	if err != nil {
		return nil, fmt.Errorf("anonymous user lookup: %w", err)
	}

	real, err := s.store.GetUser(ctx, realID)
	if err != nil {
		return nil, fmt.Errorf("real user lookup: %w", err)
	}

	if !anonymous.IsAnonymous {
		return nil, ErrNotAnonymous
	}

	if real.IsAnonymous {
		return nil, ErrTargetAnonymous
	}

	eventCount, err := s.store.CountUserEvents(ctx, anonymousID)
	if err != nil {
		return nil, fmt.Errorf("event count failed: %w", err)
	}

	if eventCount == 0 {
		return &MergeResult{
			Merged:  false,
			Message: "anonymous user has no events, nothing to merge",
		}, nil
	}

	result, err := s.store.MergeUsers(ctx, anonymousID, realID)
	if err != nil {
		return nil, fmt.Errorf("merge failed: %w", err)
	}

	s.logger.Info("users merged",
		slog.String("anonymous_user_id", anonymousID.String()),
		slog.String("real_user_id", realID.String()),
		slog.Int("events_updated", result.EventsUpdated),
		slog.Int("workouts_updated", result.WorkoutsUpdated),
		slog.Int("metrics_updated", result.MetricsUpdated),
		slog.Int("reports_updated", result.ReportsUpdated),
	)

	return result, nil
}
