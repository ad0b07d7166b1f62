package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"orderpay/internal/broker"
	"orderpay/internal/domain"
	"orderpay/internal/logging"
)

type orderRepo interface {
	Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
	UpdateStatusIfNew(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.OrderStatus) (bool, error)
}

type outboxRepo interface {
	Enqueue(ctx context.Context, tx *sql.Tx, msg *domain.OutboxMessage) error
}

type inboxRepo interface {
	Insert(ctx context.Context, tx *sql.Tx, msg *domain.InboxMessage) (bool, error)
	MarkProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type OrderService struct {
	orders orderRepo
	outbox outboxRepo
	inbox  inboxRepo
	db     *sql.DB
}

func NewOrderService(orders orderRepo, outbox outboxRepo, inbox inboxRepo, db *sql.DB) *OrderService {
	return &OrderService{orders: orders, outbox: outbox, inbox: inbox, db: db}
}

// Create inserts the order and enqueues its OrderPaymentRequested event in
// one transaction. The HTTP layer never publishes; the relay is the only
// path to the broker.
func (s *OrderService) Create(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description *string) (*domain.Order, error) {
	log := logging.FromContext(ctx)

	if !amount.IsPositive() {
		return nil, fmt.Errorf("Create: %w", domain.ErrInvalidAmount)
	}

	order := &domain.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Description: description,
		Status:      domain.OrderStatusNew,
		CreatedAt:   time.Now().UTC(),
	}

	payload, err := domain.NewOrderPaymentRequested(order.ID, userID, amount).Marshal()
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Create: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.orders.Create(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	msg := &domain.OutboxMessage{
		ID:         uuid.New(),
		Exchange:   broker.ExchangeOrders,
		RoutingKey: broker.RoutingKeyOrderPay,
		Payload:    payload,
		CreatedAt:  order.CreatedAt,
	}
	if err := s.outbox.Enqueue(ctx, tx, msg); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Create: commit: %w", err)
	}

	log.Info("order created",
		"order_id", order.ID,
		"user_id", userID,
		"amount", amount,
	)

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, fmt.Errorf("GetOrder: %w", err)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ListOrders: %w", err)
	}
	return orders, nil
}

// HandlePaymentOutcome is the order-side inbox consumer: record the dedup
// key, transition NEW to the terminal status the outcome implies, commit,
// and only then let the broker message be acked. A duplicate delivery or an
// already-terminal order commits as a no-op.
func (s *OrderService) HandlePaymentOutcome(ctx context.Context, body []byte) error {
	log := logging.FromContext(ctx)

	env, err := domain.ParseEnvelope(body)
	if err != nil {
		return fmt.Errorf("HandlePaymentOutcome: %w", err)
	}

	status, ok := env.Outcome()
	if !ok {
		return fmt.Errorf("HandlePaymentOutcome: %w: %s is not an outcome event", domain.ErrInvalidEvent, env.Type)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("HandlePaymentOutcome: begin tx: %w", err)
	}
	defer tx.Rollback()

	inbox := &domain.InboxMessage{
		ID:        uuid.New(),
		DedupKey:  env.DedupKey(),
		Payload:   body,
		Processed: true,
		CreatedAt: time.Now().UTC(),
	}
	inserted, err := s.inbox.Insert(ctx, tx, inbox)
	if err != nil {
		return fmt.Errorf("HandlePaymentOutcome: %w", err)
	}
	if !inserted {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("HandlePaymentOutcome: commit no-op: %w", err)
		}
		log.Info("duplicate payment outcome skipped",
			"order_id", env.OrderID,
			"dedup_key", inbox.DedupKey,
		)
		return nil
	}

	transitioned, err := s.orders.UpdateStatusIfNew(ctx, tx, env.OrderID, status)
	if err != nil {
		return fmt.Errorf("HandlePaymentOutcome: %w", err)
	}
	if !transitioned {
		// Either the order is already terminal (idempotent no-op) or the
		// event references an order this service never created.
		if _, err := s.orders.GetByID(ctx, env.OrderID); err != nil {
			return fmt.Errorf("HandlePaymentOutcome: order %s: %w", env.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("HandlePaymentOutcome: commit: %w", err)
	}

	log.Info("payment outcome applied",
		"order_id", env.OrderID,
		"event_type", env.Type,
		"status", status,
		"transitioned", transitioned,
	)
	return nil
}
