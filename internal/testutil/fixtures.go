package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"orderpay/internal/domain"
)

func SeedAccount(t *testing.T, db *sql.DB, userID uuid.UUID, balance decimal.Decimal) *domain.Account {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO accounts (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`,
		userID, balance,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", userID, err)
	}
	return &domain.Account{UserID: userID, Balance: balance}
}

func SeedOrder(t *testing.T, db *sql.DB, userID uuid.UUID, amount decimal.Decimal, status domain.OrderStatus) *domain.Order {
	t.Helper()

	o := &domain.Order{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO orders (id, user_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.UserID, o.Amount, o.Status, o.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed order %s: %v", o.ID, err)
	}
	return o
}

func GetAccountBalance(t *testing.T, db *sql.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", userID, err)
	}
	return balance
}

func GetOrderStatus(t *testing.T, db *sql.DB, orderID uuid.UUID) domain.OrderStatus {
	t.Helper()

	var status domain.OrderStatus
	err := db.QueryRow(`SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		t.Fatalf("get order status %s: %v", orderID, err)
	}
	return status
}

func CountPendingOutbox(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ` + table + ` WHERE NOT processed`).Scan(&count)
	if err != nil {
		t.Fatalf("count pending outbox in %s: %v", table, err)
	}
	return count
}

func CountInbox(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count)
	if err != nil {
		t.Fatalf("count inbox in %s: %v", table, err)
	}
	return count
}
