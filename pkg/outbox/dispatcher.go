package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"habittracker/pkg/trace"
)

// EventStore is the part of Repository the dispatcher needs.
type EventStore interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error
}

// Publisher delivers one event to the broker.
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Dispatcher polls the outbox and publishes pending events.
type Dispatcher struct {
	repo       EventStore
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(repo EventStore, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   1 * time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start blocks until ctx is done; run it in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			d.ProcessPendingEvents(ctx)
		}
	}
}

// ProcessPendingEvents publishes one batch and returns how many were sent.
func (d *Dispatcher) ProcessPendingEvents(ctx context.Context) int {
	events, err := d.repo.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending events", zap.Error(err))
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	d.logger.Debug("Processing pending events", zap.Int("count", len(events)))

	sent := 0
	for _, event := range events {
		if err := d.publishEvent(ctx, event); err != nil {
			d.logger.Error("Failed to publish event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			if err := d.repo.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("Failed to mark event as failed",
					zap.Int64("event_id", event.ID),
					zap.Error(err),
				)
			}
			continue
		}

		if err := d.repo.MarkAsSent(ctx, event.ID); err != nil {
			// the event may be delivered twice; consumers key on habit id + dates
			d.logger.Error("Failed to mark event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (d *Dispatcher) publishEvent(ctx context.Context, event *Event) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if traceID, ok := payload["trace_id"].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}

	if err := d.publisher.PublishWithContext(ctx, event.RoutingKey, payload); err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}
	return nil
}
