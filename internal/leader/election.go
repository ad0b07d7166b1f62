package leader

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// Election elects a single relay instance per outbox table using a postgres
// advisory lock. The lock is session-scoped, so it is held on a dedicated
// connection and drops automatically if that connection dies.
type Election struct {
	db     *sql.DB
	key    int64
	logger *slog.Logger

	mu       sync.RWMutex
	conn     *sql.Conn
	isLeader bool
}

func NewElection(db *sql.DB, key int64, logger *slog.Logger) *Election {
	return &Election{db: db, key: key, logger: logger.With("lock_key", key)}
}

func (e *Election) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

// Run keeps trying to acquire (or hold) the lock until ctx is cancelled.
func (e *Election) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.resign()
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Election) tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isLeader {
		// The lock lives on the connection; if the connection is gone, so is
		// the leadership.
		if err := e.conn.PingContext(ctx); err != nil {
			e.logger.Warn("lost leadership, connection dropped", "error", err)
			e.conn.Close()
			e.conn = nil
			e.isLeader = false
		}
		return
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		e.logger.Warn("failed to get election connection", "error", err)
		return
	}

	var acquired bool
	err = conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1)`, e.key,
	).Scan(&acquired)
	if err != nil || !acquired {
		conn.Close()
		if err != nil {
			e.logger.Warn("advisory lock attempt failed", "error", err)
		}
		return
	}

	e.conn = conn
	e.isLeader = true
	e.logger.Info("acquired relay leadership")
}

func (e *Election) resign() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		return
	}
	// Best effort: closing the connection releases the lock either way.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, e.key); err != nil {
		e.logger.Warn("failed to release advisory lock", "error", err)
	}
	e.conn.Close()
	e.conn = nil
	e.isLeader = false
	e.logger.Info("released relay leadership")
}
