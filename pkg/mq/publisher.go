package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"habittracker/pkg/metrics"
	"habittracker/pkg/otel"
	"habittracker/pkg/trace"
)

// Publisher publishes JSON events to the events exchange over one channel.
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	mu      sync.Mutex // amqp channels are not safe for concurrent publishes
}

// NewPublisher connects and declares the exchange.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
	}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected reports whether the underlying connection is still open.
func (p *Publisher) IsConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	return !p.conn.IsClosed()
}

// PublishWithContext publishes payload as a persistent JSON message. The trace id found in
// ctx travels in the x-trace-id header.
func (p *Publisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	ctx, span := otel.MQPublishSpan(ctx, routingKey, ExchangeName)
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", routingKey, err)
	}

	headers := amqp091.Table{}
	if traceID := trace.FromContext(ctx); traceID != "" {
		headers["x-trace-id"] = traceID
	}

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Headers:      headers,
		},
	)
	p.mu.Unlock()

	if err != nil {
		metrics.IncrementEventPublished(routingKey, "failed")
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	metrics.IncrementEventPublished(routingKey, "success")
	return nil
}
