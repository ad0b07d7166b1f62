package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"orderpay/internal/domain"
)

// InboxRepository serves one service's inbox table (order_inbox or
// payment_inbox).
type InboxRepository struct {
	db    *sql.DB
	table string
}

func NewInboxRepository(db *sql.DB, table string) *InboxRepository {
	return &InboxRepository{db: db, table: table}
}

// Insert records the event's dedup key inside the business transaction.
// Returns false when the key is already present: the caller must commit the
// transaction as a no-op and ack the broker message.
func (r *InboxRepository) Insert(ctx context.Context, tx *sql.Tx, msg *domain.InboxMessage) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO `+r.table+` (id, dedup_key, payload, processed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (dedup_key) DO NOTHING`,
		msg.ID, msg.DedupKey, msg.Payload, msg.Processed, msg.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("Insert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Insert: rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *InboxRepository) MarkProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE `+r.table+` SET processed = true WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkProcessed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkProcessed: %w", domain.ErrNotFound)
	}
	return nil
}
