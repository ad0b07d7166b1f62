package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"orderpay/internal/domain"
)

type store interface {
	GetPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

type publisher interface {
	Publish(ctx context.Context, exchange, routingKey, messageID string, body []byte) error
}

// Relay drains the outbox: poll pending rows in creation order, publish each
// to the broker, mark it processed after the broker ack. Publish and
// mark-processed are not atomic with each other; a crash in between means a
// duplicate publish on the next poll, which the receiving inbox dedups.
type Relay struct {
	store     store
	publisher publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	isLeader  func() bool
}

func NewRelay(store store, publisher publisher, logger *slog.Logger, interval time.Duration, batchSize int, isLeader func() bool) *Relay {
	if isLeader == nil {
		isLeader = func() bool { return true }
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		isLeader:  isLeader,
	}
}

// Start runs the poll loop until ctx is cancelled. Transient store or broker
// errors are logged and retried on the next tick; the loop never terminates
// the process.
func (r *Relay) Start(ctx context.Context) {
	r.logger.Info("outbox relay started",
		"interval", r.interval,
		"batch_size", r.batchSize,
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if !r.isLeader() {
				continue
			}
			if err := r.drain(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("failed to drain outbox", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	msgs, err := r.store.GetPending(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := r.publisher.Publish(ctx, msg.Exchange, msg.RoutingKey, msg.ID.String(), msg.Payload); err != nil {
			// Stop the batch: rows stay pending and creation order is
			// preserved on the next poll.
			return fmt.Errorf("drain: publish %s: %w", msg.ID, err)
		}

		if err := r.store.MarkProcessed(ctx, msg.ID); err != nil {
			return fmt.Errorf("drain: mark processed %s: %w", msg.ID, err)
		}

		r.logger.Debug("outbox message published",
			"message_id", msg.ID,
			"exchange", msg.Exchange,
			"routing_key", msg.RoutingKey,
		)
	}

	r.logger.Info("outbox batch drained", "count", len(msgs))
	return nil
}
