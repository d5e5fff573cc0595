package rediscache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out expiring exclusive locks. The dispatcher takes one per
// order code so two instances never book the same order twice.
type Locker struct {
	c   *redis.Client
	ttl time.Duration
}

func NewLocker(r *RedisCache, ttl time.Duration) *Locker {
	return &Locker{c: r.c, ttl: ttl}
}

// Lock is a held lock.
type Lock struct {
	c     *redis.Client
	key   string
	token string
}

// Acquire takes the lock on key. It returns (nil, nil) when someone else
// holds it.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	token := uuid.NewString()
	key = rkey(key)
	ok, err := l.c.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis lock")
	}
	if !ok {
		return nil, nil
	}
	return &Lock{c: l.c, key: key, token: token}, nil
}

// Release frees the lock unless it already expired and was taken over.
func (k *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, k.c, []string{k.key}, k.token).Err(); err != nil {
		return errors.Wrap(err, "redis unlock")
	}
	return nil
}
