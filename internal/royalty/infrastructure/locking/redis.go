package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	royalty "royalty-engine/internal/royalty/domain"
)

const (
	defaultLockTTL   = 5 * time.Minute
	defaultRetryStep = 200 * time.Millisecond
	keyPrefix        = "royalty:cycle:"
)

// RedisLocker serializes cycle writers across instances with redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// RedisOption customizes a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets the lock expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets the wait between attempts while the lock is held elsewhere.
func WithRetryInterval(step time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if step > 0 {
			l.retry = step
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) RedisOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker wraps a connected redis client.
func NewRedisLocker(rdb redis.UniversalClient, opts ...RedisOption) (*RedisLocker, error) {
	if rdb == nil {
		return nil, errors.New("redis locker: nil client")
	}
	l := &RedisLocker{
		client: redislock.New(rdb),
		ttl:    defaultLockTTL,
		retry:  defaultRetryStep,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Connect dials addr and verifies it with PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis locker: ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Acquire retries until the lock is obtained or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := keyPrefix + key
	lock, err := l.client.Obtain(ctx, lockKey, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("%w: %s", royalty.ErrCycleBusy, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis locker: obtain %s: %w", lockKey, err)
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("cycle lock release failed", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}
