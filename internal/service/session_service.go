package service

import (
	"context"
	"fmt"
	"time"

	"habittracker/internal/model"
	"habittracker/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecentSessionLimit is how many sessions ListRecent returns.
const RecentSessionLimit = 10

// SessionService manages named owner identities.
type SessionService struct {
	store  repository.SessionStore
	now    func() time.Time
	logger *zap.Logger
}

func NewSessionService(store repository.SessionStore, logger *zap.Logger) *SessionService {
	return &SessionService{store: store, now: time.Now, logger: logger}
}

func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Create stores a new session under a fresh id.
func (s *SessionService) Create(ctx context.Context, in model.SessionInput) (model.Session, error) {
	return s.Save(ctx, uuid.NewString(), in)
}

// Save creates the session or renames it, keeping its creation time.
func (s *SessionService) Save(ctx context.Context, id string, in model.SessionInput) (model.Session, error) {
	if !model.ValidSessionID(id) {
		return model.Session{}, ErrMissingOwner
	}
	if err := in.Validate(); err != nil {
		return model.Session{}, err
	}

	now := s.now()
	saved, err := s.store.SaveSession(ctx, model.Session{
		ID:        id,
		Name:      in.Name,
		CreatedAt: now,
		LastUsed:  now,
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("Session saved", zap.String("session_id", id), zap.String("name", saved.Name))
	return saved, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (model.Session, error) {
	if !model.ValidSessionID(id) {
		return model.Session{}, ErrMissingOwner
	}
	return s.store.GetSession(ctx, id)
}

// ListRecent returns the most recently used sessions first.
func (s *SessionService) ListRecent(ctx context.Context) ([]model.Session, error) {
	return s.store.ListSessions(ctx, RecentSessionLimit)
}

func (s *SessionService) Delete(ctx context.Context, id string) error {
	if !model.ValidSessionID(id) {
		return ErrMissingOwner
	}
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Session deleted", zap.String("session_id", id))
	return nil
}

func (s *SessionService) Touch(ctx context.Context, id string) error {
	if !model.ValidSessionID(id) {
		return ErrMissingOwner
	}
	return s.store.TouchSession(ctx, id, s.now())
}
