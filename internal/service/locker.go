package service

import "context"

// Locker serializes reconcile write-backs per habit. Acquire reports false when another
// writer holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string) bool
	Release(ctx context.Context, key string)
}

// NoopLocker always grants the lock; used when Redis is disabled.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) bool { return true }

func (NoopLocker) Release(context.Context, string) {}

func reconcileLockKey(habitID string) string {
	return "habit:reconcile:" + habitID
}
