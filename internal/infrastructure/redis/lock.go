package redis

import (
	"context"
	"fmt"
	"time"

	domainerrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lock extension
	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a single-owner Redis lock. It keeps scheduled jobs
// from running on more than one worker instance at a time.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire tries once to take the lock.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domainerrors.ErrLockAcquisitionFailed, err)
	}
	l.acquired = ok
	return ok, nil
}

// Extend pushes the expiry of a held lock out by ttl.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return domainerrors.ErrLockNotHeld
	}
	return l.runOwned(ctx, extendLockScript, "extend", ttl.Milliseconds())
}

// Release frees the lock if this instance still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	if err := l.runOwned(ctx, releaseLockScript, "release"); err != nil {
		return err
	}
	l.acquired = false
	return nil
}

func (l *DistributedLock) runOwned(ctx context.Context, script *redis.Script, op string, args ...any) error {
	result, err := script.Run(ctx, l.client, []string{l.key}, append([]any{l.value}, args...)...).Result()
	if err != nil {
		return fmt.Errorf("failed to %s lock: %w", op, err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return domainerrors.ErrLockNotHeld
	}
	return nil
}

func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}

// RunExclusive runs fn only if the lock named key can be taken. ran is false
// when another holder owns it.
func RunExclusive(ctx context.Context, client redis.Cmdable, key string, ttl time.Duration, fn func(context.Context) error) (ran bool, err error) {
	lock := NewDistributedLock(client, key, ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return true, fn(ctx)
}
