package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"orderpay/internal/domain"
)

// ErrDeadLetter is the handler verdict for a message that can never succeed
// (malformed payload, unknown event type). The consumer parks it on the
// dead-letter queue instead of retrying.
var ErrDeadLetter = errors.New("message cannot be processed")

// Handler processes one delivery inside its own local transaction. A nil
// return acknowledges the message; any other error is retried with backoff.
type Handler func(ctx context.Context, body []byte) error

const reconnectDelay = 2 * time.Second

type Consumer struct {
	client      *Client
	queue       string
	logger      *slog.Logger
	maxAttempts int
	backoffBase time.Duration
}

func NewConsumer(client *Client, queue string, logger *slog.Logger, maxAttempts int, backoffBase time.Duration) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}

	return &Consumer{
		client:      client,
		queue:       queue,
		logger:      logger.With("queue", queue),
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
	}
}

// Run consumes until ctx is cancelled. A dropped connection or channel is
// reopened after a short delay; the loop never gives up on its own, because a
// dead consumer stalls the saga while the process keeps serving HTTP.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.logger.Info("consumer started",
		"max_attempts", c.maxAttempts,
		"backoff_base", c.backoffBase,
	)

	runLoop(ctx, c.logger, reconnectDelay, func(ctx context.Context) error {
		return c.consume(ctx, handle)
	})

	c.logger.Info("consumer stopped")
	return nil
}

// runLoop re-runs consume until ctx is cancelled, waiting delay between
// attempts. A nil return means the delivery channel closed under us, which
// amqp091 does on any connection error.
func runLoop(ctx context.Context, logger *slog.Logger, delay time.Duration, consume func(context.Context) error) {
	for {
		err := consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("consumer disconnected, reconnecting", "error", err)
		} else {
			logger.Warn("delivery channel closed, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// consume opens a fresh channel and drains deliveries until the channel dies
// or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context, handle Handler) error {
	ch, err := c.client.Channel(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	defer ch.Close()

	if err := DeclareTopology(ch); err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("consume: qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		c.queue,
		"",    // consumer tag, broker-generated
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for d := range deliveries {
		// The shutdown signal must not abort a transaction that is already
		// in flight; give the handler its own deadline instead.
		handleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		c.process(handleCtx, ch, d, handle)
		cancel()

		if ctx.Err() != nil {
			break
		}
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, ch *amqp.Channel, d amqp.Delivery, handle Handler) {
	err := c.handleWithRetry(ctx, d.Body, handle)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr, "message_id", d.MessageId)
		}
		return
	}

	// Transient infrastructure failures must not dead-letter valid messages.
	// Requeue and let the broker redeliver once the outage passes.
	if !isPoison(err) {
		c.logger.Warn("requeueing message after transient failures",
			"error", err,
			"message_id", d.MessageId,
		)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr, "message_id", d.MessageId)
		}
		return
	}

	c.logger.Error("dead-lettering message",
		"error", err,
		"message_id", d.MessageId,
		"routing_key", d.RoutingKey,
	)
	if dlqErr := c.deadLetter(ctx, ch, d); dlqErr != nil {
		c.logger.Error("failed to dead-letter message", "error", dlqErr, "message_id", d.MessageId)
		// Leave it unacked; the broker will redeliver.
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr, "message_id", d.MessageId)
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack dead-lettered message", "error", ackErr, "message_id", d.MessageId)
	}
}

// isPoison classifies a handler failure: a message that can never succeed
// (malformed, or referencing state that does not exist) goes to the DLQ;
// anything else is assumed to be a broker or database outage.
func isPoison(err error) bool {
	return errors.Is(err, ErrDeadLetter) ||
		errors.Is(err, domain.ErrInvalidEvent) ||
		errors.Is(err, domain.ErrNotFound)
}

func (c *Consumer) handleWithRetry(ctx context.Context, body []byte, handle Handler) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := handle(ctx, body)
		if err == nil {
			return nil
		}
		// A malformed envelope can never succeed, no matter how often it is
		// retried.
		if errors.Is(err, ErrDeadLetter) || errors.Is(err, domain.ErrInvalidEvent) {
			return err
		}

		lastErr = err
		c.logger.Warn("failed to handle message",
			"error", err,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
		)
	}

	return fmt.Errorf("handleWithRetry: exhausted %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Consumer) deadLetter(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) error {
	err := ch.PublishWithContext(ctx,
		"", // default exchange routes directly to the queue
		DeadLetterQueue(c.queue),
		false,
		false,
		amqp.Publishing{
			MessageId:    d.MessageId,
			ContentType:  d.ContentType,
			Body:         d.Body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("deadLetter: %w", err)
	}
	return nil
}
