// Package ratelimit holds the per provider and model limits that drive batch
// sizing and call pacing.
package ratelimit

import (
	"fmt"
	"time"
)

// DefaultBatchCeiling is the batch ceiling used when a provider/model pair has
// no known limits.
const DefaultBatchCeiling = 50

// Limit is the published (or conservatively assumed) quota for one model.
type Limit struct {
	RequestsPerMinute int           `yaml:"rpm" json:"rpm"`
	RequestsPerDay    int           `yaml:"rpd,omitempty" json:"rpd,omitempty"` // 0 when unknown
	TokensPerMinute   int           `yaml:"tpm,omitempty" json:"tpm,omitempty"` // 0 when unknown
	InterCallDelay    time.Duration `yaml:"delay" json:"delay"`
	MaxBatchSize      int           `yaml:"max_batch" json:"max_batch"`
}

// Validate checks that a batch of MaxBatchSize calls paced by InterCallDelay
// stays within one minute of RequestsPerMinute.
func (l Limit) Validate() error {
	if l.RequestsPerMinute <= 0 {
		return fmt.Errorf("rpm must be positive, got %d", l.RequestsPerMinute)
	}
	if l.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch must be positive, got %d", l.MaxBatchSize)
	}
	if l.InterCallDelay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", l.InterCallDelay)
	}
	if l.MaxBatchSize > l.RequestsPerMinute {
		return fmt.Errorf("max_batch %d exceeds rpm %d", l.MaxBatchSize, l.RequestsPerMinute)
	}
	if time.Duration(l.MaxBatchSize)*l.InterCallDelay > time.Minute {
		return fmt.Errorf("max_batch %d with delay %s exceeds one minute", l.MaxBatchSize, l.InterCallDelay)
	}
	return nil
}

// Overrides replaces or adds limits, keyed by provider then model. It is the
// shape of the rate_limits section of the config file.
type Overrides map[string]map[string]Limit

type key struct {
	provider string
	model    string
}

// Policy answers LimitsFor lookups. A Policy is immutable once built and safe
// for concurrent use.
type Policy struct {
	limits map[key]Limit
}

// NewPolicy returns the built-in table with overrides applied on top. Every
// override must pass Validate.
func NewPolicy(overrides Overrides) (*Policy, error) {
	p := &Policy{limits: make(map[key]Limit, len(builtin))}
	for k, l := range builtin {
		p.limits[k] = l
	}

	for provider, models := range overrides {
		for model, l := range models {
			if err := l.Validate(); err != nil {
				return nil, fmt.Errorf("rate limit %s/%s: %w", provider, model, err)
			}
			p.limits[key{provider, model}] = l
		}
	}

	return p, nil
}

// Default returns the built-in policy.
func Default() *Policy {
	p, _ := NewPolicy(nil)
	return p
}

// LimitsFor returns the limits for provider and model. The second result is
// false when the pair is unknown, in which case callers fall back to
// DefaultBatchCeiling and no pacing.
func (p *Policy) LimitsFor(provider, model string) (Limit, bool) {
	l, ok := p.limits[key{provider, model}]
	return l, ok
}
