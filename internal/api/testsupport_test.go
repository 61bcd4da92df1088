package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/repsync-io/repsync/internal/catalog"
	"github.com/repsync-io/repsync/internal/identity"
	"github.com/repsync-io/repsync/internal/ingestion"
	"github.com/repsync-io/repsync/internal/metrics"
	"github.com/repsync-io/repsync/internal/projection"
	"github.com/repsync-io/repsync/internal/reports"
)

// In-memory fakes for handler tests. They implement the domain interfaces the
// server depends on; storage behavior is covered by the integration tests.

type memoryEventStore struct {
	events map[uuid.UUID]*ingestion.Event
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{events: make(map[uuid.UUID]*ingestion.Event)}
}

func (m *memoryEventStore) ExistingEventIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	found := make(map[uuid.UUID]bool)

	for _, id := range ids {
		if _, ok := m.events[id]; ok {
			found[id] = true
		}
	}

	return found, nil
}

func (m *memoryEventStore) InsertEvents(ctx context.Context, events []*ingestion.Event) error {
	for _, event := range events {
		if err := m.InsertEvent(ctx, event); err != nil {
			return err
		}
	}

	return nil
}

func (m *memoryEventStore) InsertEvent(_ context.Context, event *ingestion.Event) error {
	if _, ok := m.events[event.EventID]; ok {
		return ingestion.ErrDuplicateEvent
	}

	m.events[event.EventID] = event

	return nil
}

type noopProjector struct {
	applied int
}

func (n *noopProjector) Apply(_ context.Context, events []*ingestion.Event) error {
	n.applied += len(events)

	return nil
}

type memoryWorkoutStore struct {
	workouts map[uuid.UUID]*projection.WorkoutSummary
	sets     map[uuid.UUID][]*projection.Set
	lastSets map[uuid.UUID][]*projection.Set // keyed by exercise id
}

func newMemoryWorkoutStore() *memoryWorkoutStore {
	return &memoryWorkoutStore{
		workouts: make(map[uuid.UUID]*projection.WorkoutSummary),
		sets:     make(map[uuid.UUID][]*projection.Set),
		lastSets: make(map[uuid.UUID][]*projection.Set),
	}
}

func (m *memoryWorkoutStore) addWorkout(userID uuid.UUID, startedAt time.Time) *projection.WorkoutSummary {
	summary := &projection.WorkoutSummary{
		Workout: projection.Workout{
			WorkoutID: uuid.New(),
			UserID:    userID,
			StartedAt: startedAt,
			Status:    projection.StatusCompleted,
		},
	}
	m.workouts[summary.WorkoutID] = summary

	return summary
}

func (m *memoryWorkoutStore) ListWorkouts(_ context.Context, userID uuid.UUID) ([]*projection.WorkoutSummary, error) {
	var summaries []*projection.WorkoutSummary

	for _, summary := range m.workouts {
		if summary.UserID == userID {
			summaries = append(summaries, summary)
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})

	return summaries, nil
}

func (m *memoryWorkoutStore) GetWorkout(_ context.Context, workoutID uuid.UUID) (*projection.Workout, error) {
	summary, ok := m.workouts[workoutID]
	if !ok {
		return nil, projection.ErrWorkoutNotFound
	}

	return &summary.Workout, nil
}

func (m *memoryWorkoutStore) WorkoutsByIDs(
	_ context.Context, userID uuid.UUID, workoutIDs []uuid.UUID,
) ([]*projection.Workout, error) {
	var workouts []*projection.Workout

	for _, id := range workoutIDs {
		if summary, ok := m.workouts[id]; ok && summary.UserID == userID {
			workouts = append(workouts, &summary.Workout)
		}
	}

	return workouts, nil
}

func (m *memoryWorkoutStore) ListSets(_ context.Context, workoutID uuid.UUID) ([]*projection.Set, error) {
	return m.sets[workoutID], nil
}

func (m *memoryWorkoutStore) ListSetsBatch(
	_ context.Context, workoutIDs []uuid.UUID,
) (map[uuid.UUID][]*projection.Set, error) {
	result := make(map[uuid.UUID][]*projection.Set)

	for _, id := range workoutIDs {
		if sets, ok := m.sets[id]; ok {
			result[id] = sets
		}
	}

	return result, nil
}

func (m *memoryWorkoutStore) LastExerciseSets(
	_ context.Context, _ uuid.UUID, exerciseID uuid.UUID,
) ([]*projection.Set, error) {
	sets, ok := m.lastSets[exerciseID]
	if !ok {
		return nil, projection.ErrExerciseNeverPerformed
	}

	return sets, nil
}

type memoryRebuilder struct {
	calls int
	err   error
}

func (m *memoryRebuilder) Rebuild(_ context.Context) error {
	m.calls++

	return m.err
}

type memoryMetricsStore struct {
	stored     map[string]*metrics.WeeklyMetrics
	calculated int
	rebuilt    []uuid.UUID
	rebuildErr error
}

func metricsKey(userID uuid.UUID, weekStart time.Time) string {
	return userID.String() + "/" + weekStart.Format(time.DateOnly)
}

func newMemoryMetricsStore() *memoryMetricsStore {
	return &memoryMetricsStore{stored: make(map[string]*metrics.WeeklyMetrics)}
}

func (m *memoryMetricsStore) CalculateWeek(
	_ context.Context, userID uuid.UUID, weekStart time.Time,
) (*metrics.WeeklyMetrics, error) {
	m.calculated++

	row := &metrics.WeeklyMetrics{UserID: userID, WeekStart: metrics.WeekStart(weekStart)}
	m.stored[metricsKey(userID, row.WeekStart)] = row

	return row, nil
}

func (m *memoryMetricsStore) RebuildForUser(_ context.Context, userID uuid.UUID) error {
	if m.rebuildErr != nil {
		return m.rebuildErr
	}

	m.rebuilt = append(m.rebuilt, userID)

	return nil
}

func (m *memoryMetricsStore) GetWeek(
	_ context.Context, userID uuid.UUID, weekStart time.Time,
) (*metrics.WeeklyMetrics, error) {
	row, ok := m.stored[metricsKey(userID, metrics.WeekStart(weekStart))]
	if !ok {
		return nil, metrics.ErrMetricsNotFound
	}

	return row, nil
}

type memoryReportStore struct {
	reports map[string]*reports.WeeklyReport
}

func newMemoryReportStore() *memoryReportStore {
	return &memoryReportStore{reports: make(map[string]*reports.WeeklyReport)}
}

func (m *memoryReportStore) GetReport(
	_ context.Context, userID uuid.UUID, weekStart time.Time,
) (*reports.WeeklyReport, error) {
	report, ok := m.reports[metricsKey(userID, weekStart)]
	if !ok {
		return nil, reports.ErrReportNotFound
	}

	return report, nil
}

func (m *memoryReportStore) SaveReport(_ context.Context, report *reports.WeeklyReport) error {
	m.reports[metricsKey(report.UserID, report.WeekStart)] = report

	return nil
}

func (m *memoryReportStore) DeleteReport(_ context.Context, userID uuid.UUID, weekStart time.Time) error {
	delete(m.reports, metricsKey(userID, weekStart))

	return nil
}

type memoryUserStore struct {
	users       map[uuid.UUID]*identity.User
	eventCounts map[uuid.UUID]int
	mergeResult *identity.MergeResult
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		users:       make(map[uuid.UUID]*identity.User),
		eventCounts: make(map[uuid.UUID]int),
	}
}

func (m *memoryUserStore) addUser(anonymous bool) *identity.User {
	user := &identity.User{
		UserID:      uuid.New(),
		IsAnonymous: anonymous,
		CreatedAt:   time.Now().UTC(),
	}
	m.users[user.UserID] = user

	return user
}

func (m *memoryUserStore) CreateAnonymousUser(_ context.Context) (*identity.User, error) {
	return m.addUser(true), nil
}

func (m *memoryUserStore) GetUser(_ context.Context, userID uuid.UUID) (*identity.User, error) {
	user, ok := m.users[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}

	return user, nil
}

func (m *memoryUserStore) UpdateProfile(
	_ context.Context, userID uuid.UUID, gender *string, age *int,
) (*identity.User, error) {
	user, ok := m.users[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}

	user.Gender = gender
	user.Age = age

	return user, nil
}

func (m *memoryUserStore) CountUserEvents(_ context.Context, userID uuid.UUID) (int, error) {
	return m.eventCounts[userID], nil
}

func (m *memoryUserStore) MergeUsers(
	_ context.Context, anonymousID, _ uuid.UUID,
) (*identity.MergeResult, error) {
	delete(m.users, anonymousID)

	return m.mergeResult, nil
}

type memoryCatalogStore struct {
	exercises []*catalog.Exercise
}

func (m *memoryCatalogStore) ListExercises(
	_ context.Context, muscleCategory string,
) ([]*catalog.Exercise, error) {
	if muscleCategory == "" {
		return m.exercises, nil
	}

	var filtered []*catalog.Exercise

	for _, exercise := range m.exercises {
		if exercise.MuscleCategory == muscleCategory {
			filtered = append(filtered, exercise)
		}
	}

	return filtered, nil
}

func (m *memoryCatalogStore) GetExercise(_ context.Context, exerciseID uuid.UUID) (*catalog.Exercise, error) {
	for _, exercise := range m.exercises {
		if exercise.ExerciseID == exerciseID {
			return exercise, nil
		}
	}

	return nil, catalog.ErrExerciseNotFound
}

func (m *memoryCatalogStore) EnsureExercises(_ context.Context, exercises []*catalog.Exercise) error {
	m.exercises = append(m.exercises, exercises...)

	return nil
}

func testDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// handlerTestServer bundles the server under test with its fakes so each test
// can seed exactly the state it needs.
type handlerTestServer struct {
	server    *Server
	events    *memoryEventStore
	projector *noopProjector
	workouts  *memoryWorkoutStore
	rebuilder *memoryRebuilder
	metrics   *memoryMetricsStore
	users     *memoryUserStore
	catalog   *memoryCatalogStore
}

func setupHandlerTestServer(t *testing.T) *handlerTestServer {
	t.Helper()

	events := newMemoryEventStore()
	projector := &noopProjector{}
	workouts := newMemoryWorkoutStore()
	rebuilder := &memoryRebuilder{}
	metricsStore := newMemoryMetricsStore()
	reportStore := newMemoryReportStore()
	users := newMemoryUserStore()
	catalogStore := &memoryCatalogStore{}

	cfg := &ServerConfig{
		Port:            8080,
		Host:            "localhost",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxRequestSize:  defaultMaxRequestSize,
	}

	logger := testDiscardLogger()

	server := NewServer(cfg, &Dependencies{
		Sync:      ingestion.NewSyncService(events, projector, nil, logger),
		Workouts:  workouts,
		Rebuilder: rebuilder,
		Metrics:   metricsStore,
		Reports:   reports.NewService(reportStore, metricsStore, nil, logger),
		Users:     identity.NewService(users, logger),
		Catalog:   catalogStore,
	}, nil)

	return &handlerTestServer{
		server:    server,
		events:    events,
		projector: projector,
		workouts:  workouts,
		rebuilder: rebuilder,
		metrics:   metricsStore,
		users:     users,
		catalog:   catalogStore,
	}
}

// do runs a request through the full middleware chain and returns the recorder.
func (ts *handlerTestServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.httpServer.Handler.ServeHTTP(rec, req)

	return rec
}
