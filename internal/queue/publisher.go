package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher puts SyncEvents on the deferred queue.  It dials per publish:
// deferral only happens after a failed push, which is rare enough that a
// pooled connection is not worth its reconnect handling.
type Publisher struct {
	url string
	log *slog.Logger
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, log *slog.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// Publish stores ev persistently.  Errors are logged and returned so the
// caller can decide to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev SyncEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("rabbitmq: dial failed", slog.Any("error", err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq: channel open failed", slog.Any("error", err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch); err != nil {
		p.log.Warn("rabbitmq: queue declare failed", slog.Any("error", err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", DeferredQueue, false, false, pub); err != nil {
		p.log.Warn("rabbitmq: publish failed", slog.String("event", ev.ID), slog.Any("error", err))
		return err
	}
	return nil
}

// declare makes sure the durable queue exists (idempotent).
func declare(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(DeferredQueue, true, false, false, false, nil)
	return err
}
