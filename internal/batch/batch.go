// Package batch decides which pending images a processing step works on.
package batch

import (
	"time"

	"github.com/chriskillpack/alttagger/internal/ratelimit"
)

// Plan is the work for one processing step.
type Plan struct {
	IDs   []int64
	Delay time.Duration // pause between consecutive items
}

// Ceiling returns the largest batch allowed under limit. ok is the second
// result of ratelimit.Policy.LimitsFor.
func Ceiling(limit ratelimit.Limit, ok bool) int {
	if ok && limit.MaxBatchSize > 0 {
		return limit.MaxBatchSize
	}
	return ratelimit.DefaultBatchCeiling
}

// EffectiveSize clamps the configured batch size into [1, ceiling].
func EffectiveSize(configured int, limit ratelimit.Limit, ok bool) int {
	return min(max(configured, 1), Ceiling(limit, ok))
}

// New takes the first EffectiveSize ids from pending, preserving order. The
// returned IDs never alias pending.
func New(pending []int64, configured int, limit ratelimit.Limit, ok bool) Plan {
	n := min(EffectiveSize(configured, limit, ok), len(pending))

	p := Plan{IDs: make([]int64, n)}
	copy(p.IDs, pending[:n])
	if ok {
		p.Delay = limit.InterCallDelay
	}
	return p
}
