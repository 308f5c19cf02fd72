package processing

import (
	"context"
	"sync"
)

// Locker serialises processing steps for one session. TryAcquire must not
// block waiting for another holder.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// MutexLocker is a Locker for steps run within a single process.
type MutexLocker struct {
	mu sync.Mutex
}

func (l *MutexLocker) TryAcquire(context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *MutexLocker) Release(context.Context) error {
	l.mu.Unlock()
	return nil
}
