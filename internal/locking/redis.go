package locking

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"gastra-system/internal/apperrors"
)

// RedisLocker implements Locker on redislock for deployments where more
// than one process mutates the ledger. The lock TTL must outlive the
// longest chain recalculation; 30s matches the guarded transaction budget.
type RedisLocker struct {
	client *redislock.Client
	wait   time.Duration
	ttl    time.Duration
}

func NewRedisLocker(rdb *redis.Client, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rdb),
		wait:   wait,
		ttl:    30 * time.Second,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	retries := int(r.wait / (50 * time.Millisecond))
	if retries < 1 {
		retries = 1
	}
	lock, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperrors.ErrLockTimeout
	}
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
