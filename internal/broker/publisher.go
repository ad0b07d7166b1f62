package broker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes over its own channel and reopens it after a failure,
// so the outbox relay recovers from a broker restart without operator help.
type Publisher struct {
	client *Client

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher opens the initial channel and makes sure the topology exists
// before the first publish.
func NewPublisher(ctx context.Context, client *Client) (*Publisher, error) {
	p := &Publisher{client: client}
	if _, err := p.channel(ctx); err != nil {
		return nil, fmt.Errorf("NewPublisher: %w", err)
	}
	return p, nil
}

// channel returns the current channel, opening a fresh one (and redeclaring
// the topology) if the previous one was torn down.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.client.Channel(ctx)
	if err != nil {
		return nil, err
	}
	if err := DeclareTopology(ch); err != nil {
		ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) discard(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == ch {
		p.ch = nil
	}
	ch.Close()
}

// Publish sends one event with persistent delivery. The broker ack (the
// method returning without error) is what allows an outbox row to be marked
// processed. On failure the channel is discarded; the next call reopens.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey, messageID string, body []byte) error {
	ch, err := p.channel(ctx)
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:    messageID,
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		p.discard(ch)
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}
