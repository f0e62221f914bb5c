package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"habittracker/internal/engine"
	"habittracker/internal/model"
	"habittracker/internal/repository"
	"habittracker/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu   sync.Mutex
	keys []string
}

func (s *recordingSink) PublishWithContext(_ context.Context, routingKey string, _ interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, routingKey)
	return nil
}

// failingStore fails every UpdateHabit with err.
type failingStore struct {
	repository.HabitStore
	err error
}

func (s *failingStore) UpdateHabit(context.Context, model.Habit, ...model.Event) (model.Habit, error) {
	return model.Habit{}, s.err
}

// racingStore lets another writer win the first conditional update.
type racingStore struct {
	*repository.MemoryStore
	once sync.Once
}

func (s *racingStore) UpdateHabit(ctx context.Context, h model.Habit, events ...model.Event) (model.Habit, error) {
	s.once.Do(func() {
		other, _ := s.MemoryStore.GetHabit(ctx, h.UserID, h.ID)
		other.Name = "renamed elsewhere"
		_, _ = s.MemoryStore.UpdateHabit(ctx, other)
	})
	return s.MemoryStore.UpdateHabit(ctx, h, events...)
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) bool { return false }
func (busyLocker) Release(context.Context, string)      {}

const owner = "session-1"

func newTestService(t *testing.T, store repository.HabitStore) (*HabitService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewHabitService(store, zap.NewNop()).WithClock(clock.Now)
	return svc, clock
}

func createHabit(t *testing.T, svc *HabitService) HabitView {
	t.Helper()
	v, err := svc.Create(context.Background(), owner, model.NewHabitInput{Name: " Read ", Category: model.CategoryLearning})
	require.NoError(t, err)
	return v
}

func TestListReconcilesAndWritesBack(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil, zap.NewNop())
	svc, clock := newTestService(t, store)

	created := createHabit(t, svc)
	assert.Equal(t, "Read", created.Name, "name should be trimmed")

	clock.Advance(5 * 24 * time.Hour)
	views, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, views, 1)

	v := views[0]
	assert.Equal(t, 4, v.X2)
	assert.Len(t, v.MissedDates, 4)
	assert.False(t, v.ReconcilePending)
	assert.Equal(t, engine.StatusStruggling, v.Progress.Status)
	assert.Equal(t, 0.0, v.Progress.SuccessRate)

	stored, err := store.GetHabit(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Len(t, stored.MissedDates, 4, "missed days were not persisted")

	again, err := svc.List(ctx, owner)
	require.NoError(t, err)
	storedAgain, err := store.GetHabit(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Len(t, again[0].MissedDates, 4)
	assert.Equal(t, stored.Version, storedAgain.Version, "second read should not write again")
}

func TestCompleteIsIdempotentAndAtomic(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil, zap.NewNop())
	svc, clock := newTestService(t, store)
	created := createHabit(t, svc)

	clock.Advance(3 * 24 * time.Hour)
	v, err := svc.Complete(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.X1)
	assert.Equal(t, 2, v.X2)
	assert.True(t, v.TrackedToday)
	assert.Equal(t, 1, v.CurrentStreak)
	assert.Equal(t, created.Version+1, v.Version, "reconcile and complete should be one write")

	again, err := svc.Complete(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.X1)
	assert.Equal(t, v.Version, again.Version)
}

func TestCompleteTwiceCountsOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, repository.NewMemoryStore(nil, zap.NewNop()))
	created := createHabit(t, svc)

	before := testutil.ToFloat64(metrics.HabitCompletions)
	_, err := svc.Complete(ctx, owner, created.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, owner, created.ID)
	require.NoError(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HabitCompletions))
}

func TestReconcileFailureLeavesHabitUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore(nil, zap.NewNop())
	setup, clock := newTestService(t, mem)
	created := createHabit(t, setup)
	clock.Advance(4 * 24 * time.Hour)

	svc := NewHabitService(&failingStore{HabitStore: mem, err: repository.ErrUnavailable}, zap.NewNop()).
		WithClock(clock.Now)
	v, err := svc.Get(ctx, owner, created.ID)
	require.NoError(t, err, "Get should still succeed")
	assert.True(t, v.ReconcilePending)
	assert.Empty(t, v.MissedDates, "failed write must not change the view")
	assert.Equal(t, 0, v.X2)
}

func TestReconcileSkippedWhileLocked(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil, zap.NewNop())
	svc, clock := newTestService(t, store)
	created := createHabit(t, svc)
	clock.Advance(2 * 24 * time.Hour)

	v, err := svc.WithLocker(busyLocker{}).Get(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.True(t, v.ReconcilePending, "expected pending reconcile while locked")

	stored, err := store.GetHabit(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.MissedDates)
}

func TestReconcileRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore(nil, zap.NewNop())
	setup, clock := newTestService(t, mem)
	created := createHabit(t, setup)
	clock.Advance(3 * 24 * time.Hour)

	svc := NewHabitService(&racingStore{MemoryStore: mem}, zap.NewNop()).WithClock(clock.Now)
	v, err := svc.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.False(t, v.ReconcilePending)
	assert.Len(t, v.MissedDates, 2)
	assert.Equal(t, "renamed elsewhere", v.Name, "retry must start from the reloaded habit")
}

func TestOwnerAndValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, repository.NewMemoryStore(nil, zap.NewNop()))

	_, err := svc.List(ctx, "")
	assert.ErrorIs(t, err, ErrMissingOwner)

	_, err = svc.Create(ctx, owner, model.NewHabitInput{Name: "", Category: "Gardening"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	created := createHabit(t, svc)
	_, err = svc.Get(ctx, "someone-else", created.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Calendar(ctx, owner, created.ID, "March")
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	svc, _ := newTestService(t, repository.NewMemoryStore(sink, zap.NewNop()))
	created := createHabit(t, svc)

	name := "Read fiction"
	cat := model.CategoryCreative
	v, err := svc.Update(ctx, owner, created.ID, model.UpdateHabitInput{Name: &name, Category: &cat})
	require.NoError(t, err)
	assert.Equal(t, name, v.Name)
	assert.Equal(t, cat, v.Category)

	require.NoError(t, svc.Delete(ctx, owner, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, owner, created.ID), repository.ErrNotFound)
	assert.Equal(t, []string{model.EventHabitCreated, model.EventHabitDeleted}, sink.keys)
}

func TestCompletePublishesMissedAndCompleted(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	svc, clock := newTestService(t, repository.NewMemoryStore(sink, zap.NewNop()))
	created := createHabit(t, svc)

	clock.Advance(2 * 24 * time.Hour)
	_, err := svc.Complete(ctx, owner, created.ID)
	require.NoError(t, err)

	want := []string{model.EventHabitCreated, model.EventHabitMissed, model.EventHabitCompleted}
	assert.Equal(t, want, sink.keys)
}

func TestStatsAndCurve(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, repository.NewMemoryStore(nil, zap.NewNop()))
	a := createHabit(t, svc)
	b := createHabit(t, svc)

	for day := 0; day < 3; day++ {
		target := a.ID
		if day == 1 {
			target = b.ID
		}
		_, err := svc.Complete(ctx, owner, target)
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}
	clock.Advance(-24 * time.Hour)

	stats, err := svc.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalHabits)
	assert.Equal(t, 3, stats.CurrentStreak)
	assert.Equal(t, 2, stats.Struggling)
	assert.Equal(t, 1, stats.TrackedToday)

	curve, err := svc.Curve(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, curve.Current.Day)
	assert.Equal(t, 0.5, curve.Threshold)
}

func TestReconcileAll(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, repository.NewMemoryStore(nil, zap.NewNop()))
	createHabit(t, svc)
	createHabit(t, svc)

	clock.Advance(3 * 24 * time.Hour)
	res, err := svc.WithConcurrency(2).ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Habits: 2, Updated: 2, MissedDays: 4}, res)

	res, err = svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated, "second sweep should be a no-op")
}
