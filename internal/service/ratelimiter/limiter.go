// Package ratelimiter provides a Redis-backed token bucket shared by every
// matcher replica. It throttles calls to the remote embedding provider.
package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a call of the given cost may proceed now.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// Bucket is a token bucket definition.
type Bucket struct {
	Capacity   int64
	RefillRate float64 // tokens per second
}

// PerMinute returns a bucket that admits n calls per minute with a burst of n.
func PerMinute(n int) Bucket {
	if n <= 0 {
		return Bucket{}
	}
	return Bucket{Capacity: int64(n), RefillRate: float64(n) / 60.0}
}

// RedisLimiter evaluates buckets atomically inside Redis with a Lua script.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	script *redis.Script

	mu      sync.RWMutex
	buckets map[string]Bucket
}

// NewRedis returns nil when rdb is nil; a nil *RedisLimiter admits everything.
func NewRedis(rdb redis.UniversalClient, buckets map[string]Bucket) *RedisLimiter {
	if rdb == nil {
		return nil
	}
	if buckets == nil {
		buckets = map[string]Bucket{}
	}
	return &RedisLimiter{rdb: rdb, script: redis.NewScript(tokenBucketScript), buckets: buckets}
}

const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last = now
local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then tokens = tonumber(data[1]) end
if data[2] then last = tonumber(data[2]) end

local delta = math.max(0, now - last)
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
elseif refill_rate > 0 then
  retry_after = (cost - tokens) / refill_rate
end

redis.call("HSET", key, "tokens", tokens, "last_refill", now)
redis.call("EXPIRE", key, math.ceil(capacity / math.max(refill_rate, 0.001)) + 60)
return { allowed, tostring(retry_after) }
`

// Set installs or replaces the bucket for key.
func (l *RedisLimiter) Set(key string, b Bucket) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[key] = b
}

// Allow spends cost tokens from key's bucket. Keys without a bucket are not
// limited. Redis failures fail open and return the error for logging.
func (l *RedisLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok || b.Capacity <= 0 || b.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}
	if cost > b.Capacity {
		cost = b.Capacity
	}
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.rdb, []string{"rate:" + key}, b.Capacity, b.RefillRate, now, cost).Slice()
	if err != nil {
		slog.Error("rate limiter script failed", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}
	if len(res) < 2 {
		slog.Error("rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}
	allowed := toInt64(res[0]) == 1
	wait := toFloat64(res[1])
	if math.IsNaN(wait) || wait < 0 {
		wait = 0
	}
	return allowed, time.Duration(wait * float64(time.Second)), nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
