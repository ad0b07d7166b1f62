package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderpay/internal/domain"
	"orderpay/internal/repository"
	"orderpay/internal/testutil"
)

func TestAccountCreate_Duplicate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAccountRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, repo.Create(ctx, userID))

	err := repo.Create(ctx, userID)
	require.ErrorIs(t, err, domain.ErrAccountExists)

	account, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())
}

func TestAccountGet_Missing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAccountRepository(db)

	_, err := repo.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountDeposit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAccountRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	testutil.SeedAccount(t, db, userID, decimal.RequireFromString("10.50"))

	account, err := repo.Deposit(ctx, userID, decimal.RequireFromString("4.50"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("15.00").Equal(account.Balance))

	_, err = repo.Deposit(ctx, uuid.New(), decimal.NewFromInt(5))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountEnsureForUpdate_LazyCreate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAccountRepository(db)
	ctx := context.Background()

	userID := uuid.New()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	account, err := repo.EnsureForUpdate(ctx, tx, userID)
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())
	require.NoError(t, tx.Commit())

	// The lazily created row is now a normal account.
	account, err = repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())
}

func TestAccountConcurrentDebits_Serialised(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAccountRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	testutil.SeedAccount(t, db, userID, decimal.NewFromInt(100))
	debit := decimal.NewFromInt(60)

	// Two concurrent debits of 60 against 100: the row lock must serialise
	// them so exactly one succeeds.
	var wg sync.WaitGroup
	succeeded := make(chan bool, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				succeeded <- false
				return
			}
			defer tx.Rollback()

			account, err := repo.EnsureForUpdate(ctx, tx, userID)
			if err != nil {
				succeeded <- false
				return
			}
			if !account.CanDebit(debit) {
				succeeded <- false
				tx.Commit()
				return
			}
			if err := repo.UpdateBalance(ctx, tx, userID, account.Balance.Sub(debit)); err != nil {
				succeeded <- false
				return
			}
			succeeded <- tx.Commit() == nil
		}()
	}
	wg.Wait()
	close(succeeded)

	var wins int
	for ok := range succeeded {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.True(t, decimal.NewFromInt(40).Equal(testutil.GetAccountBalance(t, db, userID)))
}
