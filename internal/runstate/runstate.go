// Package runstate defines the small key/value store that holds session
// counters between processing steps.
package runstate

import (
	"context"
	"sync"
	"time"
)

// Store persists integer counters with an expiry. Implementations must make
// Incr atomic with respect to concurrent callers. A ttl of zero means the key
// does not expire.
type Store interface {
	// Get returns the value for key. ok is false when the key is missing or
	// expired.
	Get(ctx context.Context, key string) (value int64, ok bool, err error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr adds delta to key, treating a missing or expired key as zero, and
	// returns the new value. The expiry is reset to ttl.
	Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

type entry struct {
	value     int64
	expiresAt time.Time // zero means never
}

// Memory is an in-process Store. The zero value is not usable, call NewMemory.
type Memory struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

// SetClock replaces the time source, for tests.
func (s *Memory) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Memory) lookup(key string) (entry, bool) {
	e, ok := s.m[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.m, key)
		return entry{}, false
	}
	return e, true
}

func (s *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *Memory) Get(ctx context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	return e.value, ok, nil
}

func (s *Memory) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[key] = entry{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *Memory) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, key)
	return nil
}

func (s *Memory) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _ := s.lookup(key)
	e.value += delta
	e.expiresAt = s.expiry(ttl)
	s.m[key] = e
	return e.value, nil
}
