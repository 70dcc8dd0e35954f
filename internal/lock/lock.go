// Package lock provides the single-owner lease that keeps dispatch cycles
// from running on two instances at once.
package lock

import (
	"context"
	"sync"
)

// DispatchLockID is the advisory lock key shared by every dispatch worker.
const DispatchLockID int64 = 0x6d61696c6471 // "maildq"

type Locker interface {
	// TryAcquire takes the lock without waiting and reports whether it is now held.
	TryAcquire(ctx context.Context, lockID int64) (bool, error)
	Release(ctx context.Context, lockID int64) error
}

// LocalLocker is an in-process Locker for single-instance deployments and SQLite.
type LocalLocker struct {
	mu   sync.Mutex
	held map[int64]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[int64]bool)}
}

func (l *LocalLocker) TryAcquire(_ context.Context, lockID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[lockID] {
		return false, nil
	}
	l.held[lockID] = true
	return true, nil
}

func (l *LocalLocker) Release(_ context.Context, lockID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, lockID)
	return nil
}
