package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"orderpay/internal/domain"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance) VALUES ($1, 0)`, userID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("Create: %w", domain.ErrAccountExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, balance FROM accounts WHERE user_id = $1`, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

// EnsureForUpdate lazily creates the account and takes the row lock that
// serialises all balance mutations for this user. Must run inside the
// transaction that records the debit outcome.
func (r *AccountRepository) EnsureForUpdate(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance) VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("EnsureForUpdate: insert: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT user_id, balance FROM accounts WHERE user_id = $1 FOR UPDATE`, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("EnsureForUpdate: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, userID uuid.UUID, balance decimal.Decimal) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1 WHERE user_id = $2`, balance, userID,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrNotFound)
	}
	return nil
}

// Deposit credits the balance in a single statement; no prior read, so no
// lock ordering to worry about.
func (r *AccountRepository) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE user_id = $2
		RETURNING user_id, balance`,
		amount, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Deposit: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Deposit: %w", err)
	}
	return a, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	if err := s.Scan(&a.UserID, &a.Balance); err != nil {
		return nil, err
	}
	return &a, nil
}
