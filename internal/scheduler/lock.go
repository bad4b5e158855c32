package scheduler

import (
	"context"
	"time"

	"jobradar/internal/cache"
)

// RedisLocker takes SET NX locks through the cache wrapper. When Redis is
// down it grants every lock, leaving only the in-process overlap guard.
type RedisLocker struct {
	redis *cache.Redis
}

func NewRedisLocker(r *cache.Redis) *RedisLocker {
	return &RedisLocker{redis: r}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l == nil || !l.redis.Available() {
		return func() {}, true, nil
	}
	full := cache.LockPrefix + key
	token := lockToken()
	ok, err := l.redis.SetIfNotExists(ctx, full, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		_ = l.redis.Release(context.WithoutCancel(ctx), full, token)
	}, true, nil
}
