// Package session tracks the progress of one logical run across many
// processing steps.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chriskillpack/alttagger/internal/runstate"
)

const (
	DefaultName = "default"
	DefaultTTL  = 24 * time.Hour
)

// ErrStore wraps every run-state store failure. A store failure never reads as
// "no session".
var ErrStore = errors.New("run-state store error")

// Resumable is the answer to "is there a session to resume?".
type Resumable struct {
	HasSession   bool `json:"has_session"`
	SessionTotal int  `json:"session_total"`
	Remaining    int  `json:"remaining"`
	Processed    int  `json:"processed"`
}

// Tracker persists session_total and cumulative_success for a named session.
type Tracker struct {
	store runstate.Store
	name  string
	ttl   time.Duration
}

// New returns a Tracker for the named session. Keys expire after ttl without
// a step, an empty name selects DefaultName and a zero ttl selects DefaultTTL.
func New(store runstate.Store, name string, ttl time.Duration) *Tracker {
	if name == "" {
		name = DefaultName
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{store: store, name: name, ttl: ttl}
}

func (t *Tracker) Name() string { return t.name }

func (t *Tracker) totalKey() string      { return "alttagger:" + t.name + ":session_total" }
func (t *Tracker) cumulativeKey() string { return "alttagger:" + t.name + ":cumulative_success" }

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// StartOrResume returns the stored session total, or persists pendingCount as
// the total when no session exists. An existing total is never changed, only
// its expiry is refreshed.
func (t *Tracker) StartOrResume(ctx context.Context, pendingCount int) (int, error) {
	total, ok, err := t.store.Get(ctx, t.totalKey())
	if err != nil {
		return 0, storeErr("get session total", err)
	}
	if !ok {
		total = int64(pendingCount)
		log.Info().Str("session", t.name).Int("session_total", pendingCount).Msg("starting session")
	}
	if err := t.store.Set(ctx, t.totalKey(), total, t.ttl); err != nil {
		return 0, storeErr("set session total", err)
	}
	return int(total), nil
}

// RecordSuccess atomically adds delta to the cumulative success counter and
// returns the new value.
func (t *Tracker) RecordSuccess(ctx context.Context, delta int) (int, error) {
	v, err := t.store.Incr(ctx, t.cumulativeKey(), int64(delta), t.ttl)
	if err != nil {
		return 0, storeErr("increment cumulative success", err)
	}
	return int(v), nil
}

// Cumulative returns the cumulative success counter, zero when unset.
func (t *Tracker) Cumulative(ctx context.Context) (int, error) {
	v, _, err := t.store.Get(ctx, t.cumulativeKey())
	if err != nil {
		return 0, storeErr("get cumulative success", err)
	}
	return int(v), nil
}

// Progress converts a session total and an estimate of what is still pending
// into processed-so-far and a percentage rounded to one decimal.
func Progress(sessionTotal, remainingAfterBatch int) (processed int, percent float64) {
	processed = max(0, sessionTotal-remainingAfterBatch)
	if sessionTotal <= 0 {
		return processed, 100
	}
	percent = min(100, 100*float64(processed)/float64(sessionTotal))
	return processed, math.Round(percent*10) / 10
}

// End deletes the session counters.
func (t *Tracker) End(ctx context.Context) error {
	if err := t.store.Delete(ctx, t.totalKey()); err != nil {
		return storeErr("delete session total", err)
	}
	if err := t.store.Delete(ctx, t.cumulativeKey()); err != nil {
		return storeErr("delete cumulative success", err)
	}
	log.Info().Str("session", t.name).Msg("session ended")
	return nil
}

// CheckResumable compares the stored session total with a fresh pending
// count. A session whose pending set has drained is cleared here.
func (t *Tracker) CheckResumable(ctx context.Context, pendingCount int) (Resumable, error) {
	total, ok, err := t.store.Get(ctx, t.totalKey())
	if err != nil {
		return Resumable{}, storeErr("get session total", err)
	}
	if !ok {
		return Resumable{Remaining: pendingCount}, nil
	}

	if pendingCount == 0 {
		if err := t.End(ctx); err != nil {
			return Resumable{}, err
		}
		return Resumable{}, nil
	}

	processed, _ := Progress(int(total), pendingCount)
	return Resumable{
		HasSession:   true,
		SessionTotal: int(total),
		Remaining:    pendingCount,
		Processed:    processed,
	}, nil
}
