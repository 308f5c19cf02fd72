package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chriskillpack/alttagger/internal/processing"
)

// Lock is a processing.Locker built on a PostgreSQL advisory lock. Advisory
// locks belong to a database session, so the connection that took the lock
// is held out of the pool until Release.
type Lock struct {
	pool   *pgxpool.Pool
	lockID int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

var _ processing.Locker = (*Lock)(nil)

func NewLock(pool *pgxpool.Pool, key string) *Lock {
	return &Lock{
		pool:   pool,
		lockID: hashKey(key),
	}
}

func hashKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Advisory locks are re-entrant within a session, refuse a second holder
	// in this process explicitly.
	if l.conn != nil {
		return false, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release is safe to call when the lock is not held.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil

	var released bool
	if err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released); err != nil {
		// Closing the session drops the lock server side.
		conn.Hijack().Close(context.WithoutCancel(ctx))
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	conn.Release()
	return nil
}
