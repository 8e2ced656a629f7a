package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Resender re-signs and re-sends one deferred push.
type Resender interface {
	Resend(ctx context.Context, ev SyncEvent) error
}

// Republisher puts an event back on the queue for a later attempt.
type Republisher interface {
	Publish(ctx context.Context, ev SyncEvent) error
}

// Consumer drains the deferred queue.  A failed resend is republished with
// Attempt+1 after Delay until MaxAttempts is reached, then dropped.
type Consumer struct {
	URL         string
	Resender    Resender
	Republisher Republisher
	MaxAttempts int
	Delay       time.Duration
	Log         *slog.Logger
}

// Run connects, consumes and reconnects with backoff until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("deferred-sync: dial failed", slog.Any("error", err), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("deferred-sync: consume loop ended, reconnecting", slog.Any("error", err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.Log.Warn("deferred-sync: set QoS failed", slog.Any("error", err))
	}
	if err := declare(ch); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(DeferredQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				c.Log.Error("deferred-sync: drop message", slog.Any("error", err))
				_ = d.Nack(false, false) // do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one message body.  It returns an error only for
// messages that should be dropped.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev SyncEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if c.Delay > 0 && !sleep(ctx, c.Delay) {
		return ctx.Err()
	}
	err := c.Resender.Resend(ctx, ev)
	if err == nil {
		c.Log.Info("deferred-sync: delivered", slog.String("event", ev.ID), slog.String("type", ev.Type),
			slog.Int("attempt", ev.Attempt))
		return nil
	}
	ev.Attempt++
	ev.LastError = err.Error()
	if ev.Attempt >= c.MaxAttempts {
		return fmt.Errorf("event %s (%s to %s) gave up after %d attempts: %w", ev.ID, ev.Type, ev.Target, ev.Attempt, err)
	}
	if perr := c.Republisher.Publish(ctx, ev); perr != nil {
		return fmt.Errorf("republish event %s: %w", ev.ID, perr)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
