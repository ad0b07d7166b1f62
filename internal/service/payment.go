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

type accountRepo interface {
	Create(ctx context.Context, userID uuid.UUID) error
	Get(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	EnsureForUpdate(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID, balance decimal.Decimal) error
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Account, error)
}

// PaymentService owns the account ledger and the payment side of the saga.
type PaymentService struct {
	accounts accountRepo
	outbox   outboxRepo
	inbox    inboxRepo
	db       *sql.DB
}

func NewPaymentService(accounts accountRepo, outbox outboxRepo, inbox inboxRepo, db *sql.DB) *PaymentService {
	return &PaymentService{accounts: accounts, outbox: outbox, inbox: inbox, db: db}
}

func (s *PaymentService) CreateAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	if err := s.accounts.Create(ctx, userID); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	logging.FromContext(ctx).Info("account created", "user_id", userID)
	return &domain.Account{UserID: userID, Balance: decimal.Zero}, nil
}

func (s *PaymentService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("Deposit: %w", domain.ErrInvalidAmount)
	}

	account, err := s.accounts.Deposit(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("Deposit: %w", err)
	}

	logging.FromContext(ctx).Info("deposit applied",
		"user_id", userID,
		"amount", amount,
		"balance", account.Balance,
	)
	return account, nil
}

func (s *PaymentService) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetBalance: %w", err)
	}
	return account, nil
}

// HandlePaymentRequested is the payment-side inbox consumer. One transaction
// covers the dedup insert, the ledger decision and the outcome event, so a
// debit can never commit without its PaymentSucceeded row and vice versa.
// Insufficient funds is a reported outcome, not an error: the consumer acks
// and the order service cancels the order.
func (s *PaymentService) HandlePaymentRequested(ctx context.Context, body []byte) error {
	log := logging.FromContext(ctx)

	env, err := domain.ParseEnvelope(body)
	if err != nil {
		return fmt.Errorf("HandlePaymentRequested: %w", err)
	}
	if env.Type != domain.EventOrderPaymentRequested {
		return fmt.Errorf("HandlePaymentRequested: %w: unexpected type %s", domain.ErrInvalidEvent, env.Type)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("HandlePaymentRequested: begin tx: %w", err)
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
		return fmt.Errorf("HandlePaymentRequested: %w", err)
	}
	if !inserted {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("HandlePaymentRequested: commit no-op: %w", err)
		}
		log.Info("duplicate payment request skipped",
			"order_id", env.OrderID,
			"dedup_key", inbox.DedupKey,
		)
		return nil
	}

	// Row lock on the account serialises concurrent debits for the same
	// user; the check-then-act below is safe only under this lock.
	account, err := s.accounts.EnsureForUpdate(ctx, tx, env.UserID)
	if err != nil {
		return fmt.Errorf("HandlePaymentRequested: %w", err)
	}

	var outcome domain.EventEnvelope
	if account.CanDebit(env.Amount) {
		balanceAfter := account.Balance.Sub(env.Amount)
		if err := s.accounts.UpdateBalance(ctx, tx, env.UserID, balanceAfter); err != nil {
			return fmt.Errorf("HandlePaymentRequested: %w", err)
		}
		outcome = domain.NewPaymentSucceeded(env.OrderID, env.UserID, env.Amount, balanceAfter)
	} else {
		outcome = domain.NewPaymentFailed(env.OrderID, env.UserID, env.Amount, domain.ReasonInsufficientFunds)
	}

	payload, err := outcome.Marshal()
	if err != nil {
		return fmt.Errorf("HandlePaymentRequested: %w", err)
	}
	msg := &domain.OutboxMessage{
		ID:         uuid.New(),
		Exchange:   broker.ExchangePayments,
		RoutingKey: broker.RoutingKeyPaymentEvent,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.outbox.Enqueue(ctx, tx, msg); err != nil {
		return fmt.Errorf("HandlePaymentRequested: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("HandlePaymentRequested: commit: %w", err)
	}

	log.Info("payment request processed",
		"order_id", env.OrderID,
		"user_id", env.UserID,
		"amount", env.Amount,
		"outcome", outcome.Type,
	)
	return nil
}
