package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Logical saga topology. Both services declare it; declaration is idempotent.
const (
	ExchangeOrders   = "orders"
	ExchangePayments = "payments"

	// RoutingKeyOrderPay carries OrderPaymentRequested to the payment service.
	RoutingKeyOrderPay = "orders.pay"
	// RoutingKeyPaymentEvent carries PaymentSucceeded/PaymentFailed back.
	RoutingKeyPaymentEvent = "payments.event"
	// BindingPaymentsAll matches every payment outcome routing key.
	BindingPaymentsAll = "payments.#"

	QueuePaymentRequests = "payment_queue"
	QueueOrderStatus     = "order_status_queue"
)

// DeadLetterQueue names the parking queue for messages a consumer gave up on.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// Client owns the AMQP connection and redials it when it drops, so the
// publisher and consumers can outlive a broker restart.
type Client struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

// Connect dials with a bounded retry; the broker is routinely slower to come
// up than the services that depend on it.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	c := &Client{url: url, logger: logger}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.redial(ctx); err != nil {
		return nil, fmt.Errorf("Connect: %w", err)
	}
	return c, nil
}

// redial re-establishes the connection. Caller must hold c.mu.
func (c *Client) redial(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= 30; attempt++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(c.url)
		if err == nil {
			c.conn = conn
			return nil
		}
		c.logger.Info("waiting for message broker", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	return fmt.Errorf("gave up after 30 attempts: %w", err)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// IsClosed reports whether the underlying connection is currently down. The
// next Channel call will redial.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil || c.conn.IsClosed()
}

// Channel opens a dedicated channel, redialling the connection first if it
// has dropped. amqp channels are not safe for concurrent use, so the
// publisher and each consumer get their own.
func (c *Client) Channel(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		if err := c.redial(ctx); err != nil {
			return nil, fmt.Errorf("Channel: %w", err)
		}
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("Channel: %w", err)
	}
	return ch, nil
}

// DeclareTopology declares the durable exchanges, queues, bindings and
// dead-letter queues the saga runs on.
func DeclareTopology(ch *amqp.Channel) error {
	for _, exchange := range []string{ExchangeOrders, ExchangePayments} {
		if err := ch.ExchangeDeclare(
			exchange,
			amqp.ExchangeTopic,
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("DeclareTopology: exchange %s: %w", exchange, err)
		}
	}

	bindings := []struct {
		queue    string
		exchange string
		key      string
	}{
		{QueuePaymentRequests, ExchangeOrders, RoutingKeyOrderPay},
		{QueueOrderStatus, ExchangePayments, BindingPaymentsAll},
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("DeclareTopology: queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("DeclareTopology: bind %s: %w", b.queue, err)
		}
		if _, err := ch.QueueDeclare(DeadLetterQueue(b.queue), true, false, false, false, nil); err != nil {
			return fmt.Errorf("DeclareTopology: dlq %s: %w", b.queue, err)
		}
	}

	return nil
}
