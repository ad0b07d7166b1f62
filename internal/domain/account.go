package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the payment-side balance for a single user. The user identity
// is the primary key: one account per user.
type Account struct {
	UserID  uuid.UUID
	Balance decimal.Decimal
}

// CanDebit reports whether the balance covers the given amount.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}
