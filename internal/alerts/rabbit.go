// Package alerts forwards forgery reports to the fraud review queue over
// RabbitMQ. Consumers on the other side are the manual review tooling, so
// deliveries are persistent and the exchange is durable.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"veridoc/internal/registry"
)

const (
	defaultExchange   = "veridoc.alerts"
	defaultQueue      = "forgery-review"
	defaultRoutingKey = "forgery"
)

type RabbitPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewRabbitPublisher dials the broker and declares the durable exchange,
// queue and binding. Declarations are idempotent so publisher and review
// consumer can start in any order.
func NewRabbitPublisher(amqpURL string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(defaultExchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(defaultQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(defaultQueue, defaultRoutingKey, defaultExchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &RabbitPublisher{
		conn:       conn,
		channel:    ch,
		exchange:   defaultExchange,
		routingKey: defaultRoutingKey,
	}, nil
}

// PublishForgery pushes one report onto the review queue.
func (p *RabbitPublisher) PublishForgery(ctx context.Context, report *registry.ForgeryReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal forgery report: %w", err)
	}
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
}

func (p *RabbitPublisher) Close() {
	p.channel.Close()
	p.conn.Close()
}
