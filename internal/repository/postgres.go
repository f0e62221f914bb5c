package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"habittracker/internal/model"
	"habittracker/pkg/metrics"
	"habittracker/pkg/otel"
	"habittracker/pkg/outbox"
	"habittracker/pkg/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const habitColumns = `id, user_id, name, category, x1, x2, created_at, last_tracked_date,
        completed_dates, missed_dates, version`

// PostgresStore keeps habits and sessions in postgres. Habit events are written to the
// outbox in the same transaction as the change.
type PostgresStore struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:         db,
		outboxRepo: outbox.NewRepository(db),
		logger:     logger,
	}
}

func (s *PostgresStore) Name() string { return "postgres" }

// Pool exposes the connection pool for the outbox dispatcher.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.db }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return classify(s.db.Ping(ctx))
}

func (s *PostgresStore) Close(context.Context) error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) ListHabits(ctx context.Context, owner string) ([]model.Habit, error) {
	var habits []model.Habit
	err := s.observe(ctx, "list_habits", "habits", func(ctx context.Context) error {
		query := `SELECT ` + habitColumns + `
        FROM habits
        WHERE user_id = $1
        ORDER BY created_at ASC, id ASC`
		var err error
		habits, err = s.queryHabits(ctx, query, owner)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to list habits", zap.String("user_id", owner), zap.Error(err))
		return nil, err
	}
	return habits, nil
}

func (s *PostgresStore) ListAllHabits(ctx context.Context) ([]model.Habit, error) {
	var habits []model.Habit
	err := s.observe(ctx, "list_all_habits", "habits", func(ctx context.Context) error {
		query := `SELECT ` + habitColumns + `
        FROM habits
        ORDER BY created_at ASC, id ASC`
		var err error
		habits, err = s.queryHabits(ctx, query)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to list all habits", zap.Error(err))
		return nil, err
	}
	return habits, nil
}

func (s *PostgresStore) GetHabit(ctx context.Context, owner, id string) (model.Habit, error) {
	var h model.Habit
	err := s.observe(ctx, "get_habit", "habits", func(ctx context.Context) error {
		row := s.db.QueryRow(ctx, `SELECT `+habitColumns+`
        FROM habits
        WHERE id = $1 AND user_id = $2`, id, owner)
		var err error
		h, err = scanHabit(row)
		return err
	})
	return h, err
}

func (s *PostgresStore) CreateHabit(ctx context.Context, h model.Habit, events ...model.Event) (model.Habit, error) {
	completed, missed, err := marshalDates(h)
	if err != nil {
		return model.Habit{}, err
	}

	err = s.inTx(ctx, "create_habit", func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
        INSERT INTO habits (id, user_id, name, category, x1, x2, created_at, last_tracked_date,
                            completed_dates, missed_dates, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`,
			h.ID, h.UserID, h.Name, string(h.Category), h.X1, h.X2,
			h.CreatedAt, h.LastTrackedDate, completed, missed,
		)
		if err != nil {
			return err
		}
		return s.writeEvents(ctx, tx, h.ID, events)
	})
	if err != nil {
		s.logger.Error("Failed to insert habit", zap.String("habit_id", h.ID), zap.Error(err))
		return model.Habit{}, err
	}

	h.Version = 1
	s.logger.Info("Habit inserted successfully",
		zap.String("habit_id", h.ID),
		zap.String("user_id", h.UserID),
	)
	return h, nil
}

func (s *PostgresStore) UpdateHabit(ctx context.Context, h model.Habit, events ...model.Event) (model.Habit, error) {
	completed, missed, err := marshalDates(h)
	if err != nil {
		return model.Habit{}, err
	}

	err = s.inTx(ctx, "update_habit", func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
        UPDATE habits
        SET name = $3, category = $4, x1 = $5, x2 = $6, last_tracked_date = $7,
            completed_dates = $8, missed_dates = $9, version = version + 1, updated_at = NOW()
        WHERE id = $1 AND user_id = $2 AND version = $10`,
			h.ID, h.UserID, h.Name, string(h.Category), h.X1, h.X2,
			h.LastTrackedDate, completed, missed, h.Version,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return s.missOrConflict(ctx, tx, h.UserID, h.ID)
		}
		return s.writeEvents(ctx, tx, h.ID, events)
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNotFound) {
			s.logger.Error("Failed to update habit", zap.String("habit_id", h.ID), zap.Error(err))
		}
		return model.Habit{}, err
	}

	h.Version++
	return h, nil
}

func (s *PostgresStore) DeleteHabit(ctx context.Context, owner, id string, events ...model.Event) error {
	err := s.inTx(ctx, "delete_habit", func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM habits WHERE id = $1 AND user_id = $2`, id, owner)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return s.writeEvents(ctx, tx, id, events)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("Failed to delete habit", zap.String("habit_id", id), zap.Error(err))
	}
	return err
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	var sess model.Session
	err := s.observe(ctx, "get_session", "user_sessions", func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
        SELECT id, name, created_at, last_used
        FROM user_sessions
        WHERE id = $1`, id).Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.LastUsed)
	})
	return sess, err
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	sessions := make([]model.Session, 0)
	err := s.observe(ctx, "list_sessions", "user_sessions", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
        SELECT id, name, created_at, last_used
        FROM user_sessions
        ORDER BY last_used DESC, id ASC
        LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var sess model.Session
			if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.LastUsed); err != nil {
				return err
			}
			sessions = append(sessions, sess)
		}
		return rows.Err()
	})
	if err != nil {
		s.logger.Error("Failed to list sessions", zap.Error(err))
		return nil, err
	}
	return sessions, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess model.Session) (model.Session, error) {
	err := s.observe(ctx, "save_session", "user_sessions", func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
        INSERT INTO user_sessions (id, name, created_at, last_used)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, last_used = EXCLUDED.last_used
        RETURNING created_at`,
			sess.ID, sess.Name, sess.CreatedAt, sess.LastUsed,
		).Scan(&sess.CreatedAt)
	})
	if err != nil {
		s.logger.Error("Failed to save session", zap.String("session_id", sess.ID), zap.Error(err))
		return model.Session{}, err
	}
	return sess, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	return s.observe(ctx, "delete_session", "user_sessions", func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	return s.observe(ctx, "touch_session", "user_sessions", func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `UPDATE user_sessions SET last_used = $2 WHERE id = $1`, id, at)
		return err
	})
}

// observe runs one statement under a span and the query-duration histogram and maps
// driver errors onto the package sentinels.
func (s *PostgresStore) observe(ctx context.Context, operation, table string, fn func(context.Context) error) error {
	start := time.Now()
	err := otel.StoreSpan(ctx, "postgresql", operation, fn)
	metrics.RecordDBQueryDuration(operation, table, time.Since(start))
	return classify(err)
}

func (s *PostgresStore) inTx(ctx context.Context, operation string, fn func(context.Context, pgx.Tx) error) error {
	return s.observe(ctx, operation, "habits", func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

func (s *PostgresStore) writeEvents(ctx context.Context, tx pgx.Tx, habitID string, events []model.Event) error {
	for _, e := range events {
		if err := outbox.InsertEventInTx(ctx, tx, s.outboxRepo, "habit", habitID, e.RoutingKey, e.Payload); err != nil {
			return err
		}
	}
	return nil
}

// missOrConflict tells a stale version apart from a missing row after an update hit nothing.
func (s *PostgresStore) missOrConflict(ctx context.Context, tx pgx.Tx, owner, id string) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM habits WHERE id = $1 AND user_id = $2)`, id, owner,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrConflict
	}
	return ErrNotFound
}

func (s *PostgresStore) queryHabits(ctx context.Context, query string, args ...any) ([]model.Habit, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	habits := make([]model.Habit, 0)
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func scanHabit(row pgx.Row) (model.Habit, error) {
	var (
		h                 model.Habit
		category          string
		completed, missed []byte
	)
	if err := row.Scan(
		&h.ID,
		&h.UserID,
		&h.Name,
		&category,
		&h.X1,
		&h.X2,
		&h.CreatedAt,
		&h.LastTrackedDate,
		&completed,
		&missed,
		&h.Version,
	); err != nil {
		return model.Habit{}, err
	}
	h.Category = model.Category(category)
	if err := unmarshalDates(completed, &h.CompletedDates); err != nil {
		return model.Habit{}, fmt.Errorf("decode completed_dates of %s: %w", h.ID, err)
	}
	if err := unmarshalDates(missed, &h.MissedDates); err != nil {
		return model.Habit{}, fmt.Errorf("decode missed_dates of %s: %w", h.ID, err)
	}
	return h, nil
}

func marshalDates(h model.Habit) (completed, missed []byte, err error) {
	if completed, err = json.Marshal(nonNil(h.CompletedDates)); err != nil {
		return nil, nil, err
	}
	if missed, err = json.Marshal(nonNil(h.MissedDates)); err != nil {
		return nil, nil, err
	}
	return completed, missed, nil
}

func unmarshalDates(raw []byte, out *[]string) error {
	*out = []string{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// classify maps driver errors onto ErrNotFound / ErrUnavailable, keeping the cause.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if ok, kind := util.IsUnavailableError(err); ok {
		return fmt.Errorf("%w (%s): %v", ErrUnavailable, kind, err)
	}
	return err
}
