package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderpay/internal/domain"
	"orderpay/internal/repository"
	"orderpay/internal/service"
	"orderpay/internal/testutil"
)

func setupOrderService(t *testing.T, db *sql.DB) *service.OrderService {
	t.Helper()
	return service.NewOrderService(
		repository.NewOrderRepository(db),
		repository.NewOutboxRepository(db, repository.TableOrderOutbox),
		repository.NewInboxRepository(db, repository.TableOrderInbox),
		db,
	)
}

func TestOrderCreate_EnqueuesPaymentRequest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	description := "concert tickets"
	amount := decimal.RequireFromString("120.00")

	order, err := svc.Create(ctx, userID, amount, &description)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusNew, order.Status)
	assert.Equal(t, domain.OrderStatusNew, testutil.GetOrderStatus(t, db, order.ID))

	// The order row and its outbox row commit together.
	require.Equal(t, 1, testutil.CountPendingOutbox(t, db, repository.TableOrderOutbox))

	var payload []byte
	err = db.QueryRow(`SELECT payload FROM order_outbox LIMIT 1`).Scan(&payload)
	require.NoError(t, err)

	var env domain.EventEnvelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, domain.EventOrderPaymentRequested, env.Type)
	assert.Equal(t, order.ID, env.OrderID)
	assert.Equal(t, userID, env.UserID)
	assert.True(t, amount.Equal(env.Amount))
}

func TestOrderCreate_RejectsNonPositiveAmount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.New(), decimal.Zero, nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Create(ctx, uuid.New(), decimal.NewFromInt(-10), nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Equal(t, 0, testutil.CountPendingOutbox(t, db, repository.TableOrderOutbox))
}

func TestHandlePaymentOutcome_Succeeded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	amount := decimal.RequireFromString("50.00")
	order := testutil.SeedOrder(t, db, userID, amount, domain.OrderStatusNew)

	body, err := domain.NewPaymentSucceeded(order.ID, userID, amount, decimal.NewFromInt(10)).Marshal()
	require.NoError(t, err)

	require.NoError(t, svc.HandlePaymentOutcome(ctx, body))
	assert.Equal(t, domain.OrderStatusFinished, testutil.GetOrderStatus(t, db, order.ID))
	assert.Equal(t, 1, testutil.CountInbox(t, db, repository.TableOrderInbox))
}

func TestHandlePaymentOutcome_Failed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	amount := decimal.RequireFromString("50.00")
	order := testutil.SeedOrder(t, db, userID, amount, domain.OrderStatusNew)

	body, err := domain.NewPaymentFailed(order.ID, userID, amount, domain.ReasonInsufficientFunds).Marshal()
	require.NoError(t, err)

	require.NoError(t, svc.HandlePaymentOutcome(ctx, body))
	assert.Equal(t, domain.OrderStatusCancelled, testutil.GetOrderStatus(t, db, order.ID))
}

func TestHandlePaymentOutcome_DuplicateDelivery(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	amount := decimal.RequireFromString("50.00")
	order := testutil.SeedOrder(t, db, userID, amount, domain.OrderStatusNew)

	body, err := domain.NewPaymentSucceeded(order.ID, userID, amount, decimal.NewFromInt(10)).Marshal()
	require.NoError(t, err)

	require.NoError(t, svc.HandlePaymentOutcome(ctx, body))
	require.NoError(t, svc.HandlePaymentOutcome(ctx, body))

	assert.Equal(t, domain.OrderStatusFinished, testutil.GetOrderStatus(t, db, order.ID))
	assert.Equal(t, 1, testutil.CountInbox(t, db, repository.TableOrderInbox))
}

func TestHandlePaymentOutcome_ConflictingOutcomesApplyFirstOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	amount := decimal.RequireFromString("50.00")
	order := testutil.SeedOrder(t, db, userID, amount, domain.OrderStatusNew)

	succeeded, err := domain.NewPaymentSucceeded(order.ID, userID, amount, decimal.NewFromInt(10)).Marshal()
	require.NoError(t, err)
	failed, err := domain.NewPaymentFailed(order.ID, userID, amount, domain.ReasonInsufficientFunds).Marshal()
	require.NoError(t, err)

	require.NoError(t, svc.HandlePaymentOutcome(ctx, succeeded))

	// Both outcome kinds share one dedup key, so the contradictory event is
	// absorbed without touching the order.
	require.NoError(t, svc.HandlePaymentOutcome(ctx, failed))
	assert.Equal(t, domain.OrderStatusFinished, testutil.GetOrderStatus(t, db, order.ID))
}

func TestHandlePaymentOutcome_UnknownOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	body, err := domain.NewPaymentSucceeded(uuid.New(), uuid.New(), decimal.NewFromInt(10), decimal.NewFromInt(1)).Marshal()
	require.NoError(t, err)

	err = svc.HandlePaymentOutcome(ctx, body)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Nothing committed: a later delivery can still apply once the order
	// exists.
	assert.Equal(t, 0, testutil.CountInbox(t, db, repository.TableOrderInbox))
}

func TestHandlePaymentOutcome_RejectsNonOutcomeEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	body, err := domain.NewOrderPaymentRequested(uuid.New(), uuid.New(), decimal.NewFromInt(10)).Marshal()
	require.NoError(t, err)

	err = svc.HandlePaymentOutcome(ctx, body)
	require.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestOrderLookups_UserScoped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupOrderService(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	order := testutil.SeedOrder(t, db, ownerID, decimal.NewFromInt(10), domain.OrderStatusNew)

	got, err := svc.GetOrder(ctx, order.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.GetOrder(ctx, order.ID, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	orders, err := svc.ListOrders(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
