package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Throttle counts events per key inside a fixed window. The pool monitor
// uses it to send one low-number warning per carrier group and window.
type Throttle struct {
	c *redis.Client
}

func NewThrottle(r *RedisCache) *Throttle {
	return &Throttle{c: r.c}
}

// Allow increments the key and reports whether the count is still within
// limit. The window starts at the first increment and is not extended by
// later ones. Returns (allowed, currentCount).
func (t *Throttle) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := t.c.TxPipeline()
	k := rkey(key)
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis throttle")
	}
	n := incr.Val()
	return n <= limit, n, nil
}
