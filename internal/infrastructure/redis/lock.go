package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/alipay-bridge/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lua script for safe lock release (only owner can release)
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock serializes the background sweeps across worker instances.
// One sweep run holds the lock for its whole duration; losing the acquire
// race means another instance is already sweeping and this run is skipped.
type DistributedLock struct {
	client   *redis.Client
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

// NewDistributedLock creates a new distributed lock
func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client:   client,
		key:      fmt.Sprintf("lock:%s", key),
		value:    uuid.New().String(),
		ttl:      ttl,
		acquired: false,
	}
}

// Acquire attempts to acquire the lock
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	// SET NX EX: atomically set the lock if it doesn't exist
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.acquired = success
	return success, nil
}

// Release releases the lock
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	result, err := releaseLockScript.Run(
		ctx,
		l.client,
		[]string{l.key},
		l.value,
	).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	val, ok := result.(int64)
	if !ok || val == 0 {
		return domainErrors.ErrLockNotHeld
	}

	l.acquired = false
	return nil
}

// IsAcquired returns whether the lock is acquired
func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}
