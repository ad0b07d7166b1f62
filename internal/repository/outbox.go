package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"orderpay/internal/domain"
)

const outboxColumns = `id, exchange, routing_key, payload, processed, created_at`

// OutboxRepository serves one service's outbox table; the table name is
// fixed at construction (order_outbox or payment_outbox).
type OutboxRepository struct {
	db    *sql.DB
	table string
}

func NewOutboxRepository(db *sql.DB, table string) *OutboxRepository {
	return &OutboxRepository{db: db, table: table}
}

// Enqueue takes an explicit *sql.Tx: an outbox row only ever exists because
// the business mutation in the same transaction committed.
func (r *OutboxRepository) Enqueue(ctx context.Context, tx *sql.Tx, msg *domain.OutboxMessage) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO `+r.table+` (id, exchange, routing_key, payload, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.Exchange, msg.RoutingKey, msg.Payload, msg.Processed, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

// GetPending returns unpublished rows in creation order. Only the elected
// leader polls, so rows are not claimed here; a publish raced by a leadership
// handover at worst repeats, and the receiving inbox dedups it.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM `+r.table+`
		WHERE processed = false ORDER BY created_at, id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}
	return msgs, nil
}

// MarkProcessed is deliberately not part of the publish transaction: a crash
// between publish and mark causes a duplicate publish, which the receiving
// inbox dedups.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
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

func (r *OutboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+r.table+` WHERE processed = false`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountPending: %w", err)
	}
	return n, nil
}

func scanOutboxMessage(s scanner) (*domain.OutboxMessage, error) {
	var m domain.OutboxMessage
	err := s.Scan(
		&m.ID, &m.Exchange, &m.RoutingKey, &m.Payload, &m.Processed, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
