package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()

	valid := NewOrderPaymentRequested(orderID, userID, decimal.NewFromInt(50))
	validBody, err := json.Marshal(valid)
	require.NoError(t, err)

	tests := []struct {
		name    string
		body    []byte
		wantErr bool
	}{
		{
			name: "valid payment request",
			body: validBody,
		},
		{
			name:    "not json",
			body:    []byte("not json"),
			wantErr: true,
		},
		{
			name:    "unknown type",
			body:    []byte(`{"type":"SomethingElse","order_id":"` + orderID.String() + `","user_id":"` + userID.String() + `"}`),
			wantErr: true,
		},
		{
			name:    "missing order id",
			body:    []byte(`{"type":"OrderPaymentRequested","user_id":"` + userID.String() + `","amount":"50"}`),
			wantErr: true,
		},
		{
			name:    "missing user id",
			body:    []byte(`{"type":"OrderPaymentRequested","order_id":"` + orderID.String() + `","amount":"50"}`),
			wantErr: true,
		},
		{
			name:    "zero amount",
			body:    []byte(`{"type":"OrderPaymentRequested","order_id":"` + orderID.String() + `","user_id":"` + userID.String() + `","amount":"0"}`),
			wantErr: true,
		},
		{
			name:    "negative amount",
			body:    []byte(`{"type":"PaymentSucceeded","order_id":"` + orderID.String() + `","user_id":"` + userID.String() + `","amount":"-1"}`),
			wantErr: true,
		},
		{
			name:    "failed without reason",
			body:    []byte(`{"type":"PaymentFailed","order_id":"` + orderID.String() + `","user_id":"` + userID.String() + `","amount":"50"}`),
			wantErr: true,
		},
		{
			name: "status update with terminal status",
			body: []byte(`{"type":"OrderStatusUpdated","order_id":"` + orderID.String() + `","user_id":"` + userID.String() + `","status":"FINISHED"}`),
		},
		{
			name:    "status update with non-terminal status",
			body:    []byte(`{"type":"OrderStatusUpdated","order_id":"` + orderID.String() + `","user_id":"` + userID.String() + `","status":"NEW"}`),
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := ParseEnvelope(tc.body)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, orderID, env.OrderID)
			assert.Equal(t, userID, env.UserID)
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	amount := decimal.RequireFromString("50.00")
	balanceAfter := decimal.RequireFromString("30.00")

	body, err := NewPaymentSucceeded(orderID, userID, amount, balanceAfter).Marshal()
	require.NoError(t, err)

	env, err := ParseEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, env.Type)
	assert.True(t, amount.Equal(env.Amount))
	require.NotNil(t, env.BalanceAfter)
	assert.True(t, balanceAfter.Equal(*env.BalanceAfter))
}

func TestDedupKey(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	amount := decimal.NewFromInt(10)

	request := NewOrderPaymentRequested(orderID, userID, amount)
	succeeded := NewPaymentSucceeded(orderID, userID, amount, decimal.NewFromInt(1))
	failed := NewPaymentFailed(orderID, userID, amount, ReasonInsufficientFunds)

	assert.Equal(t, "payment-request:"+orderID.String(), request.DedupKey())

	// Both outcome kinds share a key: only one outcome can ever be applied
	// per order.
	assert.Equal(t, succeeded.DedupKey(), failed.DedupKey())
	assert.NotEqual(t, request.DedupKey(), succeeded.DedupKey())
}

func TestOutcome(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	amount := decimal.NewFromInt(10)

	status, ok := NewPaymentSucceeded(orderID, userID, amount, decimal.Zero).Outcome()
	assert.True(t, ok)
	assert.Equal(t, OrderStatusFinished, status)

	status, ok = NewPaymentFailed(orderID, userID, amount, ReasonInsufficientFunds).Outcome()
	assert.True(t, ok)
	assert.Equal(t, OrderStatusCancelled, status)

	_, ok = NewOrderPaymentRequested(orderID, userID, amount).Outcome()
	assert.False(t, ok)
}
