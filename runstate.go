package alttagger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/chriskillpack/alttagger/internal/runstate"
)

// RunState is a runstate.Store kept in the run_state table. Expired rows are
// ignored on read and overwritten on write.
type RunState struct {
	db  *DB
	now func() time.Time
}

var _ runstate.Store = (*RunState)(nil)

// RunState returns a run-state store sharing this database.
func (db *DB) RunState() *RunState {
	return &RunState{db: db, now: time.Now}
}

func (s *RunState) expiry(ttl time.Duration) sql.NullInt64 {
	if ttl <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: s.now().Add(ttl).UnixMilli(), Valid: true}
}

func (s *RunState) Get(ctx context.Context, key string) (int64, bool, error) {
	var v int64
	err := s.db.db.QueryRowContext(ctx, `
		SELECT value FROM run_state
		WHERE key=$1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now().UnixMilli()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (s *RunState) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO run_state (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at`,
		key, value, s.expiry(ttl))
	return err
}

func (s *RunState) Delete(ctx context.Context, key string) error {
	_, err := s.db.db.ExecContext(ctx, "DELETE FROM run_state WHERE key=$1", key)
	return err
}

// Incr is a single UPSERT so concurrent increments from separate processes
// sharing the database file cannot lose updates.
func (s *RunState) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	var v int64
	err := s.db.db.QueryRowContext(ctx, `
		INSERT INTO run_state (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT(key) DO UPDATE SET
			value = CASE
				WHEN run_state.expires_at IS NOT NULL AND run_state.expires_at <= $4 THEN excluded.value
				ELSE run_state.value + excluded.value
			END,
			expires_at = excluded.expires_at
		RETURNING value`,
		key, delta, s.expiry(ttl), s.now().UnixMilli()).Scan(&v)
	return v, err
}
