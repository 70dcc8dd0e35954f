package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// PostgresLocker uses session-level advisory locks. The lock belongs to a
// database session, so the connection that took it is pinned until Release.
type PostgresLocker struct {
	db *sql.DB

	mu    sync.Mutex
	conns map[int64]*sql.Conn
}

func NewPostgresLocker(db *sql.DB) *PostgresLocker {
	return &PostgresLocker{
		db:    db,
		conns: make(map[int64]*sql.Conn),
	}
}

func (l *PostgresLocker) TryAcquire(ctx context.Context, lockID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.conns[lockID]; ok {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&ok); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return false, nil
	}
	l.conns[lockID] = conn
	return true, nil
}

func (l *PostgresLocker) Release(ctx context.Context, lockID int64) error {
	l.mu.Lock()
	conn, ok := l.conns[lockID]
	delete(l.conns, lockID)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
