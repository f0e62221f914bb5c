package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Event a row of outbox_events waiting to be published
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	RoutingKey    string
	Payload       json.RawMessage
	Status        string
	RetryCount    int
	NextRetryAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository reads and writes outbox_events.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertEvent stores event inside tx so it commits or rolls back with the business write.
func (r *Repository) InsertEvent(ctx context.Context, tx pgx.Tx, event *Event) error {
	query := `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, routing_key, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		event.AggregateType,
		event.AggregateID,
		event.RoutingKey,
		event.Payload,
		event.Status,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// GetPendingEvents returns up to limit events that are due for (re)delivery, oldest first.
func (r *Repository) GetPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, routing_key, payload, status,
		       retry_count, next_retry_at, created_at, updated_at
		FROM outbox_events
		WHERE status = 'pending'
		AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.AggregateType,
			&e.AggregateID,
			&e.RoutingKey,
			&e.Payload,
			&e.Status,
			&e.RetryCount,
			&e.NextRetryAt,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// MarkAsSent flags the event as delivered.
func (r *Repository) MarkAsSent(ctx context.Context, eventID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'sent', updated_at = NOW()
		WHERE id = $1
	`, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}
	return nil
}

// MarkAsFailed bumps retry_count and schedules a linear backoff (5s, 10s, ...);
// after maxRetries the event is parked as failed.
func (r *Repository) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	var retryCount int
	err := r.db.QueryRow(ctx, `SELECT retry_count FROM outbox_events WHERE id = $1`, eventID).Scan(&retryCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("event not found: %d", eventID)
		}
		return fmt.Errorf("failed to get retry count: %w", err)
	}

	retryCount++

	status := StatusPending
	var nextRetryAt *time.Time
	if retryCount >= maxRetries {
		status = StatusFailed
	} else {
		next := time.Now().Add(time.Duration(retryCount) * 5 * time.Second)
		nextRetryAt = &next
	}

	_, err = r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = $1, retry_count = $2, next_retry_at = $3, updated_at = NOW()
		WHERE id = $4
	`, status, retryCount, nextRetryAt, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}
	return nil
}
