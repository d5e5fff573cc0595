package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	require.False(t, ok)
}

func TestRedisCache_KeysAreNamespaced(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "smsa:cities", []byte("Riyadh\nJeddah"), time.Hour))
	_, err := NewThrottle(c).Allow(ctx, "awb:smsa:default", 1, time.Hour)
	require.NoError(t, err)
	_, err = NewLocker(c, time.Minute).Acquire(ctx, "order:TV-3")
	require.NoError(t, err)

	require.ElementsMatch(t, []string{
		"fulfillment:smsa:cities",
		"fulfillment:awb:smsa:default",
		"fulfillment:order:TV-3",
	}, mr.Keys())

	// a foreign key without the prefix is invisible to the cache
	require.NoError(t, mr.Set("smsa:cities", "stale"))
	got, ok, err := c.Get(ctx, "smsa:cities")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Riyadh\nJeddah", string(got))
}

func TestThrottle_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	th := NewThrottle(New(mr.Addr()))

	ctx := context.Background()
	ok, n, err := th.Allow(ctx, "awb:naqel:default", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = th.Allow(ctx, "awb:naqel:default", 1, time.Hour)
	require.False(t, ok)
	require.Equal(t, int64(2), n)

	mr.FastForward(time.Hour + time.Second)
	ok, n, _ = th.Allow(ctx, "awb:naqel:default", 1, time.Hour)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestLocker_AcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewLocker(New(mr.Addr()), time.Minute)

	ctx := context.Background()
	lock, err := l.Acquire(ctx, "order:TV-1")
	require.NoError(t, err)
	require.NotNil(t, lock)

	other, err := l.Acquire(ctx, "order:TV-1")
	require.NoError(t, err)
	require.Nil(t, other)

	require.NoError(t, lock.Release(ctx))
	again, err := l.Acquire(ctx, "order:TV-1")
	require.NoError(t, err)
	require.NotNil(t, again)
}

func TestLock_ReleaseAfterTakeover(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewLocker(New(mr.Addr()), time.Second)

	ctx := context.Background()
	first, err := l.Acquire(ctx, "order:TV-2")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	second, err := l.Acquire(ctx, "order:TV-2")
	require.NoError(t, err)
	require.NotNil(t, second)

	require.NoError(t, first.Release(ctx))
	require.True(t, mr.Exists(KeyPrefix+"order:TV-2"), "stale release keeps the new holder's lock")
}
