// Package rediscache holds the redis backed helpers shared by the service
// instances: the carrier lookup cache (SMSA city list), the per-order
// dispatch lock and the number pool warning throttle.
package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key this service writes, so the redis
// instance can be shared with other applications.
const KeyPrefix = "fulfillment:"

// RedisCache is the connection shared by the cache, Locker and Throttle.
type RedisCache struct {
	c *redis.Client
}

func New(addr string) *RedisCache {
	return &RedisCache{
		c: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

func rkey(k string) string {
	return KeyPrefix + k
}

// Get returns a cached carrier lookup. A missing or expired entry is not
// an error: ok is false and the caller fetches from the carrier again.
func (r *RedisCache) Get(ctx context.Context, k string) (val []byte, ok bool, err error) {
	val, err = r.c.Get(ctx, rkey(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", k)
	}
	return val, true, nil
}

// Set stores a carrier lookup for ttl.
func (r *RedisCache) Set(ctx context.Context, k string, value []byte, ttl time.Duration) error {
	if err := r.c.Set(ctx, rkey(k), value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", k)
	}
	return nil
}

// Ping checks the connection at startup. Dispatch works without redis, so
// a failure is only logged.
func (r *RedisCache) Ping(ctx context.Context) error {
	return errors.Wrap(r.c.Ping(ctx).Err(), "redis ping")
}

func (r *RedisCache) Close() error {
	return r.c.Close()
}
