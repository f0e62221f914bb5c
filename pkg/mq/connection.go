package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// ExchangeName topic exchange all habit events are published to
const ExchangeName = "events"

// NewConnection dials RabbitMQ.
func NewConnection(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the durable events exchange.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}
