package util

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"habittracker/pkg/circuitbreaker"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestKeyLockFailsOpenWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	lock := NewKeyLock(unreachableRedis(t), time.Second, zap.New(core))

	threshold := circuitbreaker.DefaultConfig().FailureThreshold
	for i := 0; i < threshold; i++ {
		require.True(t, lock.Acquire(ctx, "habit:reconcile:h1"), "attempt %d should fail open", i)
	}
	assert.Equal(t, threshold, logs.FilterMessage("Redis lock check failed, allowing processing").Len())
	assert.Equal(t, circuitbreaker.StateOpen, lock.breaker.GetState())

	// With the breaker open Redis is skipped entirely and nothing more is logged.
	assert.True(t, lock.Acquire(ctx, "habit:reconcile:h1"))
	assert.Equal(t, threshold, logs.Len())

	assert.NotPanics(t, func() { lock.Release(ctx, "habit:reconcile:h1") })
	assert.Equal(t, threshold, logs.Len(), "release is skipped while the breaker is open")
}

func TestKeyLockReleaseLogsRedisErrors(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	lock := NewKeyLock(unreachableRedis(t), time.Second, zap.New(core))

	assert.NotPanics(t, func() { lock.Release(context.Background(), "habit:reconcile:h2") })
	assert.Equal(t, 1, logs.FilterMessage("Failed to release redis lock").Len())
}
