package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chriskillpack/alttagger/internal/runstate"
)

// RunState is a runstate.Store backed by the alttagger_run_state table.
// Expired rows are ignored on read and overwritten on write.
type RunState struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ runstate.Store = (*RunState)(nil)

func NewRunState(pool *pgxpool.Pool) *RunState {
	return &RunState{pool: pool, now: time.Now}
}

func (s *RunState) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.now().Add(ttl)
	return &t
}

func (s *RunState) Get(ctx context.Context, key string) (int64, bool, error) {
	var v int64
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM alttagger_run_state
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now()).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get run state %q: %w", key, err)
	}
	return v, true, nil
}

func (s *RunState) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alttagger_run_state (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, s.expiry(ttl))
	if err != nil {
		return fmt.Errorf("set run state %q: %w", key, err)
	}
	return nil
}

func (s *RunState) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM alttagger_run_state WHERE key = $1", key); err != nil {
		return fmt.Errorf("delete run state %q: %w", key, err)
	}
	return nil
}

// Incr adds delta in a single statement so concurrent steps never lose an
// update. An expired counter restarts from delta.
func (s *RunState) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	var v int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO alttagger_run_state (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = CASE
				WHEN alttagger_run_state.expires_at IS NOT NULL AND alttagger_run_state.expires_at <= $4
				THEN EXCLUDED.value
				ELSE alttagger_run_state.value + EXCLUDED.value
			END,
			expires_at = EXCLUDED.expires_at
		RETURNING value`,
		key, delta, s.expiry(ttl), s.now()).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("incr run state %q: %w", key, err)
	}
	return v, nil
}
