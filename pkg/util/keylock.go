package util

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"habittracker/pkg/circuitbreaker"
)

// KeyLock is a best-effort distributed lock on a single key, backed by Redis SET NX.
// When Redis is unreachable (or the breaker in front of it is open) Acquire fails open:
// it reports the lock as held so callers keep working without Redis.
type KeyLock struct {
	rdb     *redis.Client
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewKeyLock creates a lock helper; keys expire after ttl even if never released.
func NewKeyLock(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *KeyLock {
	return &KeyLock{
		rdb:     rdb,
		ttl:     ttl,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

// Acquire returns true when the caller owns key (or Redis is unavailable),
// false when another holder has it.
func (l *KeyLock) Acquire(ctx context.Context, key string) bool {
	var ok bool
	err := l.breaker.Execute(func() error {
		var err error
		ok, err = l.rdb.SetNX(ctx, key, 1, l.ttl).Result()
		return err
	})
	if err != nil {
		if !errors.Is(err, circuitbreaker.ErrOpen) {
			l.logger.Warn("Redis lock check failed, allowing processing",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok {
		l.logger.Debug("Lock held elsewhere", zap.String("key", key))
	}
	return ok
}

// Release drops key. Errors are logged; the TTL cleans up regardless.
func (l *KeyLock) Release(ctx context.Context, key string) {
	err := l.breaker.Execute(func() error {
		return l.rdb.Del(ctx, key).Err()
	})
	if err != nil && !errors.Is(err, circuitbreaker.ErrOpen) {
		l.logger.Warn("Failed to release redis lock", zap.String("key", key), zap.Error(err))
	}
}
