package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderPaymentRequested EventType = "OrderPaymentRequested"
	EventPaymentSucceeded      EventType = "PaymentSucceeded"
	EventPaymentFailed         EventType = "PaymentFailed"
	EventOrderStatusUpdated    EventType = "OrderStatusUpdated"
)

const ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"

// EventEnvelope is the wire schema shared by both services: a tagged union
// over the four saga event kinds. Envelopes are immutable once emitted;
// consumers validate them exactly once, at the boundary.
type EventEnvelope struct {
	Type    EventType `json:"type"`
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`

	Amount decimal.Decimal `json:"amount,omitempty"`

	// BalanceAfter is set on PaymentSucceeded only.
	BalanceAfter *decimal.Decimal `json:"balance_after,omitempty"`

	// Reason is set on PaymentFailed only.
	Reason string `json:"reason,omitempty"`

	// Status is set on OrderStatusUpdated only.
	Status OrderStatus `json:"status,omitempty"`
}

func NewOrderPaymentRequested(orderID, userID uuid.UUID, amount decimal.Decimal) EventEnvelope {
	return EventEnvelope{
		Type:    EventOrderPaymentRequested,
		OrderID: orderID,
		UserID:  userID,
		Amount:  amount,
	}
}

func NewPaymentSucceeded(orderID, userID uuid.UUID, amount, balanceAfter decimal.Decimal) EventEnvelope {
	return EventEnvelope{
		Type:         EventPaymentSucceeded,
		OrderID:      orderID,
		UserID:       userID,
		Amount:       amount,
		BalanceAfter: &balanceAfter,
	}
}

func NewPaymentFailed(orderID, userID uuid.UUID, amount decimal.Decimal, reason string) EventEnvelope {
	return EventEnvelope{
		Type:    EventPaymentFailed,
		OrderID: orderID,
		UserID:  userID,
		Amount:  amount,
		Reason:  reason,
	}
}

// ParseEnvelope decodes and validates a wire payload. A non-nil error means
// the message is malformed and must be dead-lettered, not retried.
func ParseEnvelope(data []byte) (EventEnvelope, error) {
	var e EventEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return EventEnvelope{}, fmt.Errorf("ParseEnvelope: %w: %w", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return EventEnvelope{}, fmt.Errorf("ParseEnvelope: %w", err)
	}
	return e, nil
}

func (e EventEnvelope) Validate() error {
	if e.OrderID == uuid.Nil {
		return fmt.Errorf("%w: missing order_id", ErrInvalidEvent)
	}
	if e.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	}

	switch e.Type {
	case EventOrderPaymentRequested, EventPaymentSucceeded, EventPaymentFailed:
		if !e.Amount.IsPositive() {
			return fmt.Errorf("%w: amount must be positive", ErrInvalidEvent)
		}
		if e.Type == EventPaymentFailed && e.Reason == "" {
			return fmt.Errorf("%w: missing failure reason", ErrInvalidEvent)
		}
	case EventOrderStatusUpdated:
		if !e.Status.IsTerminal() {
			return fmt.Errorf("%w: status must be FINISHED or CANCELLED", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

// DedupKey derives the natural identity used by the inbox unique constraint.
// Both outcome kinds for the same order share one key: exactly one outcome
// may ever be applied per order.
func (e EventEnvelope) DedupKey() string {
	switch e.Type {
	case EventOrderPaymentRequested:
		return "payment-request:" + e.OrderID.String()
	default:
		return "payment-outcome:" + e.OrderID.String()
	}
}

// Outcome maps an outcome-class event to the terminal order status it
// implies. ok is false for OrderPaymentRequested.
func (e EventEnvelope) Outcome() (OrderStatus, bool) {
	switch e.Type {
	case EventPaymentSucceeded:
		return OrderStatusFinished, true
	case EventPaymentFailed:
		return OrderStatusCancelled, true
	case EventOrderStatusUpdated:
		return e.Status, true
	}
	return "", false
}

func (e EventEnvelope) Marshal() (json.RawMessage, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("Marshal: %w", err)
	}
	return b, nil
}
