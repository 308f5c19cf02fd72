// Package quota limits how many processing steps each caller may request.
package quota

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/chriskillpack/alttagger/internal/processing"
)

// A bucket untouched for this long has refilled and can be dropped.
const idleAfter = time.Hour

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out a token bucket per caller. Each caller may run perHour
// steps an hour, all of which can be spent at once.
type Limiter struct {
	mu        sync.Mutex
	perHour   int
	callers   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// New returns a Limiter allowing perHour steps per caller. A perHour of zero
// disables the quota.
func New(perHour int) *Limiter {
	return &Limiter{
		perHour: perHour,
		callers: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one step from caller's quota, returning an error wrapping
// processing.ErrRateLimited when none is left.
func (l *Limiter) Allow(caller string) error {
	if l == nil || l.perHour <= 0 {
		return nil
	}

	now := l.now()
	l.mu.Lock()
	if now.Sub(l.lastSweep) >= idleAfter {
		l.sweep(now)
	}
	b, ok := l.callers[caller]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.perHour)), l.perHour)}
		l.callers[caller] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return processing.ErrRateLimited
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return fmt.Errorf("%w: %s, try again in %s", processing.ErrRateLimited, caller, d.Round(time.Second))
	}
	return nil
}

// sweep drops idle buckets. The caller must hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	for caller, b := range l.callers {
		if now.Sub(b.lastSeen) >= idleAfter {
			delete(l.callers, caller)
		}
	}
	l.lastSweep = now
}
