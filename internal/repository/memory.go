package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"habittracker/internal/model"

	"go.uber.org/zap"
)

// MemoryStore keeps everything in process memory. Values are deep-copied on the way
// in and out so callers never share slices with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	habits   map[string]model.Habit
	sessions map[string]model.Session
	sink     EventSink
	logger   *zap.Logger
}

func NewMemoryStore(sink EventSink, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		habits:   make(map[string]model.Habit),
		sessions: make(map[string]model.Session),
		sink:     sink,
		logger:   logger,
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) ListHabits(_ context.Context, owner string) ([]model.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Habit, 0)
	for _, h := range s.habits {
		if h.UserID == owner {
			out = append(out, h.Clone())
		}
	}
	sortHabits(out)
	return out, nil
}

func (s *MemoryStore) ListAllHabits(context.Context) ([]model.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Habit, 0, len(s.habits))
	for _, h := range s.habits {
		out = append(out, h.Clone())
	}
	sortHabits(out)
	return out, nil
}

func (s *MemoryStore) GetHabit(_ context.Context, owner, id string) (model.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.habits[id]
	if !ok || h.UserID != owner {
		return model.Habit{}, ErrNotFound
	}
	return h.Clone(), nil
}

func (s *MemoryStore) CreateHabit(ctx context.Context, h model.Habit, events ...model.Event) (model.Habit, error) {
	s.mu.Lock()
	if _, exists := s.habits[h.ID]; exists {
		s.mu.Unlock()
		return model.Habit{}, ErrConflict
	}
	h = h.Clone()
	h.Version = 1
	s.habits[h.ID] = h
	s.mu.Unlock()

	s.publish(ctx, events)
	return h.Clone(), nil
}

func (s *MemoryStore) UpdateHabit(ctx context.Context, h model.Habit, events ...model.Event) (model.Habit, error) {
	s.mu.Lock()
	current, ok := s.habits[h.ID]
	if !ok || current.UserID != h.UserID {
		s.mu.Unlock()
		return model.Habit{}, ErrNotFound
	}
	if current.Version != h.Version {
		s.mu.Unlock()
		return model.Habit{}, ErrConflict
	}
	h = h.Clone()
	h.CreatedAt = current.CreatedAt
	h.Version = current.Version + 1
	s.habits[h.ID] = h
	s.mu.Unlock()

	s.publish(ctx, events)
	return h.Clone(), nil
}

func (s *MemoryStore) DeleteHabit(ctx context.Context, owner, id string, events ...model.Event) error {
	s.mu.Lock()
	h, ok := s.habits[id]
	if !ok || h.UserID != owner {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.habits, id)
	s.mu.Unlock()

	s.publish(ctx, events)
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit int) ([]model.Session, error) {
	s.mu.RLock()
	out := make([]model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sortSessions(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveSession(_ context.Context, sess model.Session) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sess.ID]; ok {
		sess.CreatedAt = existing.CreatedAt
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) TouchSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.LastUsed = at
		s.sessions[id] = sess
	}
	return nil
}

func (s *MemoryStore) publish(ctx context.Context, events []model.Event) {
	publishEvents(ctx, s.sink, s.logger, events)
}

// publishEvents delivers events after a committed write. Failures are logged and dropped.
func publishEvents(ctx context.Context, sink EventSink, logger *zap.Logger, events []model.Event) {
	if sink == nil {
		return
	}
	for _, e := range events {
		if err := sink.PublishWithContext(ctx, e.RoutingKey, e.Payload); err != nil {
			logger.Warn("Failed to publish habit event",
				zap.String("routing_key", e.RoutingKey),
				zap.String("habit_id", e.Payload.HabitID),
				zap.Error(err),
			)
		}
	}
}

func sortHabits(hs []model.Habit) {
	slices.SortFunc(hs, func(a, b model.Habit) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortSessions(ss []model.Session) {
	slices.SortFunc(ss, func(a, b model.Session) int {
		if c := b.LastUsed.Compare(a.LastUsed); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
