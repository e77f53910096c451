// Package events consumes domain events from RabbitMQ and turns them into
// notifications. Every message is validated against a versioned JSON-schema
// contract before it reaches the builder.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hirewave/notify/internal/builder"
	"github.com/hirewave/notify/internal/model"
)

// Default envelope values for messages without explicit headers.
const (
	defaultEventType    = "NotificationRequested"
	defaultEventVersion = "1.0.0"
)

// Config holds the queue settings.
type Config struct {
	URL      string
	Queue    string
	Prefetch int
}

// NotificationBuilder is the slice of the builder the consumer needs.
type NotificationBuilder interface {
	Build(ctx context.Context, in builder.Input) (*model.Notification, error)
}

// notificationRequested is the wire shape of the ingress event.
type notificationRequested struct {
	RecipientID string         `json:"recipientId"`
	ActorID     *string        `json:"actorId,omitempty"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Body        *string        `json:"body,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Consumer reads the notification events queue.
type Consumer struct {
	cfg     Config
	builder NotificationBuilder
	logger  *slog.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewConsumer dials RabbitMQ and declares the queue.
func NewConsumer(cfg Config, b NotificationBuilder, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", cfg.Queue, err)
	}

	return &Consumer{
		cfg:     cfg,
		builder: b,
		logger:  logger,
		conn:    conn,
		channel: ch,
	}, nil
}

// Run consumes until ctx is canceled or the channel dies.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", c.cfg.Queue, err)
	}

	c.logger.Info("event consumer started", "queue", c.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle acks a processed delivery, rejects a malformed one, and requeues
// on transient build failures.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	requeue, err := c.process(ctx, d)
	if err != nil {
		c.logger.Warn("event processing failed",
			"tag", d.DeliveryTag,
			"requeue", requeue,
			"error", err,
		)
		d.Nack(false, requeue)
		return
	}
	d.Ack(false)
}

// process validates and builds one event. The returned flag says whether a
// failure is worth redelivering: contract violations are not, builder
// failures (db down) are.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) (requeue bool, err error) {
	eventType, eventVersion := envelope(d.Headers)

	if err := ValidateEvent(eventType, eventVersion, d.Body); err != nil {
		return false, err
	}

	var ev notificationRequested
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		return false, fmt.Errorf("unmarshal event: %w", err)
	}

	_, err = c.builder.Build(ctx, builder.Input{
		RecipientID: ev.RecipientID,
		ActorID:     ev.ActorID,
		Type:        model.NotificationType(ev.Type),
		Title:       ev.Title,
		Body:        ev.Body,
		Data:        ev.Data,
	})
	if err != nil {
		return true, fmt.Errorf("build notification: %w", err)
	}
	return false, nil
}

// envelope reads the event type and version headers, defaulting both.
func envelope(headers amqp.Table) (string, string) {
	eventType := defaultEventType
	eventVersion := defaultEventVersion

	if v, ok := headers["event-type"].(string); ok && v != "" {
		eventType = v
	}
	if v, ok := headers["event-version"].(string); ok && v != "" {
		eventVersion = v
	}
	return eventType, eventVersion
}

// Close shuts the channel and connection down.
func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	return c.conn.Close()
}
