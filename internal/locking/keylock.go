package locking

import (
	"context"
	"sync"
	"time"

	"gastra-system/internal/apperrors"
)

// KeyLock is the in-process Locker: one mutex per live key, created on
// demand and dropped again once the last waiter is gone.
type KeyLock struct {
	mu    sync.Mutex
	wait  time.Duration
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	sem  chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

func NewKeyLock(wait time.Duration) *KeyLock {
	return &KeyLock{
		wait:  wait,
		locks: make(map[string]*keyLockEntry),
	}
}

func (k *KeyLock) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyLockEntry{sem: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	timer := time.NewTimer(k.wait)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			k.unref(key, entry)
		}, nil
	case <-timer.C:
		k.unref(key, entry)
		return nil, apperrors.ErrLockTimeout
	case <-ctx.Done():
		k.unref(key, entry)
		return nil, ctx.Err()
	}
}

func (k *KeyLock) unref(key string, entry *keyLockEntry) {
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
