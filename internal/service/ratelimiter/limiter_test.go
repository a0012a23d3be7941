package ratelimiter

import (
	"context"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, buckets map[string]Bucket) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, buckets), mr
}

func TestPerMinute(t *testing.T) {
	t.Parallel()
	b := PerMinute(60)
	assert.Equal(t, int64(60), b.Capacity)
	assert.InDelta(t, 1.0, b.RefillRate, 1e-9)
	assert.Equal(t, Bucket{}, PerMinute(0))
}

func TestNilLimiterAdmits(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewRedis(nil, nil))
	var l *RedisLimiter
	ok, wait, err := l.Allow(context.Background(), "any", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, wait)
	l.Set("any", PerMinute(1))
}

func TestAllow_UnknownKeyAdmits(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(t, nil)
	ok, wait, err := l.Allow(context.Background(), "unknown", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, wait)
}

func TestAllow_ExhaustsCapacity(t *testing.T) {
	t.Parallel()
	l, mr := newTestLimiter(t, nil)
	l.Set("embed", Bucket{Capacity: 3, RefillRate: 0.001})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, wait, err := l.Allow(ctx, "embed", 1)
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i)
		assert.Zero(t, wait)
	}
	ok, wait, err := l.Allow(ctx, "embed", 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.True(t, mr.Exists("rate:embed"))
}

func TestAllow_CostClampedToCapacity(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(t, map[string]Bucket{"embed": {Capacity: 2, RefillRate: 1}})
	ok, _, err := l.Allow(context.Background(), "embed", 10)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_RedisDownFailsOpen(t *testing.T) {
	t.Parallel()
	l, mr := newTestLimiter(t, map[string]Bucket{"embed": PerMinute(1)})
	mr.Close()
	ok, _, err := l.Allow(context.Background(), "embed", 1)
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestConversions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(5), toInt64(int64(5)))
	assert.Equal(t, int64(7), toInt64(7.9))
	assert.Zero(t, toInt64("x"))
	assert.InDelta(t, 1.5, toFloat64("1.5"), 1e-9)
	assert.InDelta(t, 2.0, toFloat64(int64(2)), 1e-9)
	assert.True(t, math.IsNaN(toFloat64("nan?")))
	assert.True(t, math.IsNaN(toFloat64(nil)))
}
