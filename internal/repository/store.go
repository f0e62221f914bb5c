package repository

import (
	"context"
	"errors"
	"time"

	"habittracker/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to another owner.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update lost a race with another writer.
	ErrConflict = errors.New("version conflict")
	// ErrUnavailable wraps failures caused by an unreachable backend.
	ErrUnavailable = errors.New("storage unavailable")
)

// HabitStore persists habits. Every write takes the events that describe it; how they
// are delivered (outbox row, direct publish) depends on the implementation.
type HabitStore interface {
	ListHabits(ctx context.Context, owner string) ([]model.Habit, error)
	ListAllHabits(ctx context.Context) ([]model.Habit, error)
	GetHabit(ctx context.Context, owner, id string) (model.Habit, error)
	CreateHabit(ctx context.Context, h model.Habit, events ...model.Event) (model.Habit, error)
	// UpdateHabit succeeds only while the stored version equals h.Version and
	// returns the habit with its new version. Otherwise it returns ErrConflict.
	UpdateHabit(ctx context.Context, h model.Habit, events ...model.Event) (model.Habit, error)
	DeleteHabit(ctx context.Context, owner, id string, events ...model.Event) error
}

// SessionStore persists named owner identities.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (model.Session, error)
	ListSessions(ctx context.Context, limit int) ([]model.Session, error)
	// SaveSession inserts s or renames the existing session, keeping its creation time.
	SaveSession(ctx context.Context, s model.Session) (model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// TouchSession bumps lastUsed; unknown ids are ignored.
	TouchSession(ctx context.Context, id string, at time.Time) error
}

// Store is the full storage capability selected at startup.
type Store interface {
	HabitStore
	SessionStore
	Name() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// EventSink receives events from stores without a transactional outbox.
type EventSink interface {
	PublishWithContext(ctx context.Context, routingKey string, payload interface{}) error
}
