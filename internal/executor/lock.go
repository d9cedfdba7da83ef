package executor

import (
	"context"
	"fmt"
	"time"
)

// ExecutionLock serializes executions. At most one holder exists at a time.
type ExecutionLock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// MemoryLock is an in-process ExecutionLock backed by a one-slot channel.
type MemoryLock struct {
	sem chan struct{}
}

// NewMemoryLock creates an unlocked MemoryLock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is free or ctx is done.
func (l *MemoryLock) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("executor: wait for lock: %w", ctx.Err())
	}
	released := false
	return func() {
		if !released {
			released = true
			<-l.sem
		}
	}, nil
}

// LockWaiter is a distributed lock that can block until acquired. The Redis
// LockManager satisfies it.
type LockWaiter interface {
	AcquireWait(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// DistributedLock adapts a LockWaiter to ExecutionLock so several engine
// processes sharing one wallet never trade concurrently.
type DistributedLock struct {
	waiter LockWaiter
	key    string
	ttl    time.Duration
}

// NewDistributedLock creates a DistributedLock on key. ttl bounds how long a
// crashed holder can block the others.
func NewDistributedLock(waiter LockWaiter, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{waiter: waiter, key: key, ttl: ttl}
}

// Acquire blocks until the shared lock is held or ctx is done.
func (l *DistributedLock) Acquire(ctx context.Context) (func(), error) {
	release, err := l.waiter.AcquireWait(ctx, l.key, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("executor: acquire %s: %w", l.key, err)
	}
	return release, nil
}

var (
	_ ExecutionLock = (*MemoryLock)(nil)
	_ ExecutionLock = (*DistributedLock)(nil)
)
