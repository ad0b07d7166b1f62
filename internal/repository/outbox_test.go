package repository_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderpay/internal/domain"
	"orderpay/internal/repository"
	"orderpay/internal/testutil"
)

func newOutboxMessage(createdAt time.Time) *domain.OutboxMessage {
	return &domain.OutboxMessage{
		ID:         uuid.New(),
		Exchange:   "orders",
		RoutingKey: "orders.pay",
		Payload:    json.RawMessage(`{"type":"OrderPaymentRequested"}`),
		CreatedAt:  createdAt,
	}
}

func TestOutboxEnqueue_CommitAndRollback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOutboxRepository(db, repository.TableOrderOutbox)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, tx, newOutboxMessage(time.Now().UTC())))
	require.NoError(t, tx.Commit())

	assert.Equal(t, 1, testutil.CountPendingOutbox(t, db, repository.TableOrderOutbox))

	// A rolled back transaction must leave no outbox row behind.
	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, tx, newOutboxMessage(time.Now().UTC())))
	require.NoError(t, tx.Rollback())

	assert.Equal(t, 1, testutil.CountPendingOutbox(t, db, repository.TableOrderOutbox))
}

func TestOutboxGetPending_OrderAndLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOutboxRepository(db, repository.TableOrderOutbox)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	var ids []uuid.UUID
	for i := range 5 {
		msg := newOutboxMessage(base.Add(time.Duration(i) * time.Second))
		ids = append(ids, msg.ID)
		enqueue(t, db, repo, msg)
	}

	msgs, err := repo.GetPending(ctx, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		assert.Equal(t, ids[i], msg.ID)
	}

	require.NoError(t, repo.MarkProcessed(ctx, ids[0]))

	msgs, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, ids[1], msgs[0].ID)
}

func TestOutboxGetPending_TimestampTieBrokenByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOutboxRepository(db, repository.TableOrderOutbox)
	ctx := context.Background()

	// Rows sharing a timestamp must still come back in one deterministic
	// order on every poll.
	ts := time.Now().UTC().Truncate(time.Second)
	var ids []uuid.UUID
	for range 4 {
		msg := newOutboxMessage(ts)
		ids = append(ids, msg.ID)
		enqueue(t, db, repo, msg)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})

	first, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	second, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)

	require.Len(t, first, 4)
	for i := range first {
		assert.Equal(t, ids[i], first[i].ID)
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestOutboxMarkProcessed_UnknownID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOutboxRepository(db, repository.TablePaymentOutbox)

	err := repo.MarkProcessed(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOutboxCountPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOutboxRepository(db, repository.TableOrderOutbox)
	ctx := context.Background()

	n, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	msg := newOutboxMessage(time.Now().UTC())
	enqueue(t, db, repo, msg)

	n, err = repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.MarkProcessed(ctx, msg.ID))

	n, err = repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func enqueue(t *testing.T, db *sql.DB, repo *repository.OutboxRepository, msg *domain.OutboxMessage) {
	t.Helper()
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, tx, msg))
	require.NoError(t, tx.Commit())
}
