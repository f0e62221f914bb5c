package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"habittracker/internal/engine"
	"habittracker/internal/model"
	"habittracker/internal/repository"
	"habittracker/pkg/logger"
	"habittracker/pkg/metrics"
	"habittracker/pkg/otel"
	"habittracker/pkg/trace"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxWriteAttempts   = 3
	defaultConcurrency = 8
	// OverallStreakLimit caps the cross-habit streak shown in stats.
	OverallStreakLimit = 30
)

// HabitView is a habit as returned to clients: reconciled, with derived progress.
type HabitView struct {
	model.Habit
	Progress         engine.Evaluation `json:"progress"`
	TrackedToday     bool              `json:"trackedToday"`
	CurrentStreak    int               `json:"currentStreak"`
	LongestStreak    int               `json:"longestStreak"`
	ReconcilePending bool              `json:"reconcilePending,omitempty"`
}

// Stats summarizes all habits of one owner.
type Stats struct {
	TotalHabits        int     `json:"totalHabits"`
	CurrentStreak      int     `json:"currentStreak"`
	TrackedToday       int     `json:"trackedToday"`
	Formed             int     `json:"formed"`
	Building           int     `json:"building"`
	Struggling         int     `json:"struggling"`
	AverageSuccessRate float64 `json:"averageSuccessRate"`
}

// SweepResult reports one ReconcileAll pass.
type SweepResult struct {
	Habits     int
	Updated    int
	MissedDays int
	Pending    int
}

// HabitService owns habit reads and writes. Every read reconciles missed days first
// and writes the result back under a per-habit lock with a version check.
type HabitService struct {
	store       repository.HabitStore
	sessions    *SessionService
	locker      Locker
	params      engine.Params
	loc         *time.Location
	now         func() time.Time
	concurrency int
	logger      *zap.Logger
}

func NewHabitService(store repository.HabitStore, logger *zap.Logger) *HabitService {
	return &HabitService{
		store:       store,
		locker:      NoopLocker{},
		params:      engine.DefaultParams,
		loc:         time.UTC,
		now:         time.Now,
		concurrency: defaultConcurrency,
		logger:      logger,
	}
}

func (s *HabitService) WithLocker(l Locker) *HabitService {
	if l != nil {
		s.locker = l
	}
	return s
}

// WithSessions marks the owner's session as used on create and complete.
func (s *HabitService) WithSessions(sessions *SessionService) *HabitService {
	s.sessions = sessions
	return s
}

func (s *HabitService) WithParams(p engine.Params) *HabitService {
	s.params = p
	return s
}

func (s *HabitService) WithLocation(loc *time.Location) *HabitService {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *HabitService) WithClock(now func() time.Time) *HabitService {
	s.now = now
	return s
}

func (s *HabitService) WithConcurrency(n int) *HabitService {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Params exposes the curve parameters in use.
func (s *HabitService) Params() engine.Params {
	return s.params
}

func (s *HabitService) List(ctx context.Context, owner string) ([]HabitView, error) {
	if !model.ValidSessionID(owner) {
		return nil, ErrMissingOwner
	}
	ctx, span := otel.StartSpan(ctx, "habit.list")
	defer span.End()

	habits, err := s.store.ListHabits(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	views := make([]HabitView, len(habits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, h := range habits {
		i, h := i, h
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			views[i] = s.present(gctx, h)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *HabitService) Get(ctx context.Context, owner, id string) (HabitView, error) {
	if !model.ValidSessionID(owner) {
		return HabitView{}, ErrMissingOwner
	}
	ctx, span := otel.StartSpan(ctx, "habit.get")
	defer span.End()

	h, err := s.store.GetHabit(ctx, owner, id)
	if err != nil {
		return HabitView{}, err
	}
	return s.present(ctx, h), nil
}

func (s *HabitService) Create(ctx context.Context, owner string, in model.NewHabitInput) (HabitView, error) {
	if !model.ValidSessionID(owner) {
		return HabitView{}, ErrMissingOwner
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return HabitView{}, err
	}
	ctx, span := otel.StartSpan(ctx, "habit.create")
	defer span.End()

	now := s.now()
	h := model.Habit{
		ID:             uuid.NewString(),
		UserID:         owner,
		Name:           in.Name,
		Category:       in.Category,
		CreatedAt:      now,
		CompletedDates: []string{},
		MissedDates:    []string{},
	}

	saved, err := s.store.CreateHabit(ctx, h, s.event(ctx, model.EventHabitCreated, h, nil))
	if err != nil {
		return HabitView{}, fmt.Errorf("create habit: %w", err)
	}
	metrics.IncrementHabitLifecycle("created")
	s.touch(ctx, owner)

	logger.WithTrace(ctx, s.logger).Info("Habit created",
		zap.String("habit_id", saved.ID),
		zap.String("user_id", owner),
		zap.String("category", string(saved.Category)),
	)
	return s.view(saved, false), nil
}

func (s *HabitService) Update(ctx context.Context, owner, id string, in model.UpdateHabitInput) (HabitView, error) {
	if !model.ValidSessionID(owner) {
		return HabitView{}, ErrMissingOwner
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return HabitView{}, err
	}
	ctx, span := otel.StartSpan(ctx, "habit.update")
	defer span.End()

	saved, _, err := s.retryWrite(ctx, owner, id, func(h model.Habit) (model.Habit, []model.Event, bool) {
		if in.Name != nil {
			h.Name = *in.Name
		}
		if in.Category != nil {
			h.Category = *in.Category
		}
		return h, nil, true
	})
	if err != nil {
		return HabitView{}, err
	}
	return s.present(ctx, saved), nil
}

// Complete reconciles and marks today done in one conditional write. Completing an
// already completed day changes nothing.
func (s *HabitService) Complete(ctx context.Context, owner, id string) (HabitView, error) {
	if !model.ValidSessionID(owner) {
		return HabitView{}, ErrMissingOwner
	}
	ctx, span := otel.StartSpan(ctx, "habit.complete")
	defer span.End()

	now := s.now()
	var missed int
	saved, written, err := s.retryWrite(ctx, owner, id, func(h model.Habit) (model.Habit, []model.Event, bool) {
		reconciled, added := engine.Reconcile(h, now, s.loc)
		done, changed := engine.Complete(reconciled, now, s.loc)
		missed = len(added)
		if !changed && len(added) == 0 {
			return h, nil, false
		}
		var events []model.Event
		if len(added) > 0 {
			events = append(events, s.event(ctx, model.EventHabitMissed, done, added))
		}
		if changed {
			events = append(events, s.event(ctx, model.EventHabitCompleted, done,
				[]string{engine.DateKey(engine.Day(now, s.loc))}))
		}
		return done, events, true
	})
	if err != nil {
		return HabitView{}, err
	}
	if !written {
		return s.view(saved, false), nil
	}

	if missed > 0 {
		metrics.AddReconciledMissedDays(missed)
	}
	metrics.IncrementCompletion()
	s.touch(ctx, owner)

	logger.WithTrace(ctx, s.logger).Info("Habit completed",
		zap.String("habit_id", id),
		zap.String("user_id", owner),
		zap.Int("x1", saved.X1),
		zap.Int("x2", saved.X2),
	)
	return s.view(saved, false), nil
}

func (s *HabitService) Delete(ctx context.Context, owner, id string) error {
	if !model.ValidSessionID(owner) {
		return ErrMissingOwner
	}
	ctx, span := otel.StartSpan(ctx, "habit.delete")
	defer span.End()

	ref := model.Habit{ID: id, UserID: owner}
	if err := s.store.DeleteHabit(ctx, owner, id, s.event(ctx, model.EventHabitDeleted, ref, nil)); err != nil {
		return err
	}
	metrics.IncrementHabitLifecycle("deleted")

	logger.WithTrace(ctx, s.logger).Info("Habit deleted",
		zap.String("habit_id", id),
		zap.String("user_id", owner),
	)
	return nil
}

// Curve returns graph data for the habit's formation curve.
func (s *HabitService) Curve(ctx context.Context, owner, id string) (engine.Curve, error) {
	v, err := s.Get(ctx, owner, id)
	if err != nil {
		return engine.Curve{}, err
	}
	return s.params.Curve(v.Progress.SuccessfulDays), nil
}

// Calendar returns the month grid for month (YYYY-MM); empty means the current month.
func (s *HabitService) Calendar(ctx context.Context, owner, id, month string) (engine.Calendar, error) {
	today := engine.Day(s.now(), s.loc)
	selected := today
	if month != "" {
		m, err := time.ParseInLocation(engine.MonthLayout, month, time.UTC)
		if err != nil {
			v := &model.ValidationError{}
			v.Add("month", "must be formatted as YYYY-MM")
			return engine.Calendar{}, v
		}
		selected = m
	}

	v, err := s.Get(ctx, owner, id)
	if err != nil {
		return engine.Calendar{}, err
	}
	return engine.MonthGrid(v.Habit, selected, today, s.loc), nil
}

func (s *HabitService) Stats(ctx context.Context, owner string) (Stats, error) {
	views, err := s.List(ctx, owner)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{TotalHabits: len(views)}
	sets := make([]map[string]struct{}, 0, len(views))
	var rateSum float64
	for _, v := range views {
		sets = append(sets, engine.KeySet(v.CompletedDates))
		rateSum += v.Progress.SuccessRate
		if v.TrackedToday {
			stats.TrackedToday++
		}
		switch v.Progress.Status {
		case engine.StatusFormed:
			stats.Formed++
		case engine.StatusBuilding:
			stats.Building++
		default:
			stats.Struggling++
		}
	}
	if len(views) > 0 {
		stats.AverageSuccessRate = rateSum / float64(len(views))
	}
	stats.CurrentStreak = engine.ActiveStreak(sets, engine.Day(s.now(), s.loc), OverallStreakLimit)
	return stats, nil
}

// ReconcileAll back-fills missed days for every stored habit.
func (s *HabitService) ReconcileAll(ctx context.Context) (SweepResult, error) {
	ctx, span := otel.StartSpan(ctx, "habit.reconcile_all")
	defer span.End()

	habits, err := s.store.ListAllHabits(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list all habits: %w", err)
	}

	type outcome struct {
		added   int
		pending bool
	}
	outcomes := make([]outcome, len(habits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, h := range habits {
		i, h := i, h
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, added, pending := s.reconcile(gctx, h)
			outcomes[i] = outcome{added: added, pending: pending}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Habits: len(habits)}
	for _, o := range outcomes {
		if o.added > 0 {
			res.Updated++
			res.MissedDays += o.added
		}
		if o.pending {
			res.Pending++
		}
	}
	return res, nil
}

func (s *HabitService) present(ctx context.Context, h model.Habit) HabitView {
	reconciled, _, pending := s.reconcile(ctx, h)
	return s.view(reconciled, pending)
}

func (s *HabitService) view(h model.Habit, pending bool) HabitView {
	today := engine.Day(s.now(), s.loc)
	current, longest := engine.Streaks(h.CompletedDates, today)
	return HabitView{
		Habit:            h,
		Progress:         s.params.Evaluate(h, today),
		TrackedToday:     slices.Contains(h.CompletedDates, engine.DateKey(today)),
		CurrentStreak:    current,
		LongestStreak:    longest,
		ReconcilePending: pending,
	}
}

// reconcile writes back missed days for h. On any failure it returns h unchanged and
// reports the write as pending; the next read starts again from the same anchor.
func (s *HabitService) reconcile(ctx context.Context, h model.Habit) (model.Habit, int, bool) {
	now := s.now()
	next, added := engine.Reconcile(h, now, s.loc)
	if len(added) == 0 {
		return h, 0, false
	}

	log := logger.WithTrace(ctx, s.logger).With(zap.String("habit_id", h.ID))
	key := reconcileLockKey(h.ID)
	if !s.locker.Acquire(ctx, key) {
		log.Warn("Reconcile skipped, habit locked by another writer")
		metrics.IncrementReconcileFailure("locked")
		return h, 0, true
	}
	defer s.locker.Release(ctx, key)

	for attempt := 1; ; attempt++ {
		saved, err := s.store.UpdateHabit(ctx, next, s.event(ctx, model.EventHabitMissed, next, added))
		if err == nil {
			metrics.AddReconciledMissedDays(len(added))
			log.Info("Reconciled missed days",
				zap.Int("missed_days", len(added)),
				zap.Int("x2", saved.X2),
			)
			return saved, len(added), false
		}

		if errors.Is(err, repository.ErrConflict) && attempt < maxWriteAttempts {
			fresh, gerr := s.store.GetHabit(ctx, h.UserID, h.ID)
			if gerr == nil {
				h = fresh
				next, added = engine.Reconcile(fresh, now, s.loc)
				if len(added) == 0 {
					return fresh, 0, false
				}
				continue
			}
			err = gerr
		}

		reason := "store_error"
		if errors.Is(err, repository.ErrConflict) {
			reason = "conflict"
		}
		metrics.IncrementReconcileFailure(reason)
		log.Warn("Reconcile write-back failed",
			zap.String("reason", reason),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return h, 0, true
	}
}

// retryWrite loads the habit, applies mutate and writes it back conditionally,
// reloading on version conflicts. It reports false when mutate left the habit as is
// and nothing was written.
func (s *HabitService) retryWrite(
	ctx context.Context,
	owner, id string,
	mutate func(model.Habit) (model.Habit, []model.Event, bool),
) (model.Habit, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		h, err := s.store.GetHabit(ctx, owner, id)
		if err != nil {
			return model.Habit{}, false, err
		}

		next, events, changed := mutate(h)
		if !changed {
			return h, false, nil
		}

		saved, err := s.store.UpdateHabit(ctx, next, events...)
		if err == nil {
			return saved, true, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return model.Habit{}, false, err
		}
		lastErr = err
		logger.WithTrace(ctx, s.logger).Debug("Version conflict, retrying",
			zap.String("habit_id", id),
			zap.Int("attempt", attempt),
		)
	}
	return model.Habit{}, false, lastErr
}

func (s *HabitService) event(ctx context.Context, key string, h model.Habit, dates []string) model.Event {
	return model.Event{
		RoutingKey: key,
		Payload: model.HabitEvent{
			HabitID:    h.ID,
			UserID:     h.UserID,
			Dates:      dates,
			X1:         h.X1,
			X2:         h.X2,
			OccurredAt: s.now().UTC(),
			TraceID:    trace.FromContext(ctx),
		},
	}
}

func (s *HabitService) touch(ctx context.Context, owner string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Touch(ctx, owner); err != nil {
		s.logger.Debug("Failed to touch session", zap.String("session_id", owner), zap.Error(err))
	}
}
