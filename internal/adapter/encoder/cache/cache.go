// Package cache wraps an encoder with an in-process FIFO cache and an optional shared Redis layer.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
)

const keyPrefix = "emb:"

// Options configures the cache.
type Options struct {
	// Model is mixed into keys so vectors from different models never collide.
	Model    string
	Capacity int
	// Redis is optional; nil disables the shared layer.
	Redis redis.UniversalClient
	TTL   time.Duration
}

// Encoder caches embedding vectors by text hash. It is safe for concurrent use.
// Eviction is FIFO.
type Encoder struct {
	base     domain.Encoder
	model    string
	capacity int
	rdb      redis.UniversalClient
	ttl      time.Duration

	mu  sync.RWMutex
	m   map[string][]float32
	ord []string
}

// New wraps base. With no capacity and no Redis client, base is returned unmodified.
func New(base domain.Encoder, opts Options) domain.Encoder {
	if base == nil || (opts.Capacity <= 0 && opts.Redis == nil) {
		return base
	}
	c := &Encoder{base: base, model: opts.Model, capacity: opts.Capacity, rdb: opts.Redis, ttl: opts.TTL}
	if c.capacity > 0 {
		c.m = make(map[string][]float32, c.capacity)
		c.ord = make([]string, 0, c.capacity)
	}
	return c
}

// Embed returns cached vectors where available and encodes the rest in one call.
func (c *Encoder) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	missIdx := make([]int, 0)
	for i, t := range texts {
		keys[i] = c.keyFor(t)
		if v, ok := c.getLocal(keys[i]); ok {
			observability.CacheLookup("memory", true)
			res[i] = v
			continue
		}
		observability.CacheLookup("memory", false)
		missIdx = append(missIdx, i)
	}
	if len(missIdx) > 0 && c.rdb != nil {
		missIdx = c.fillFromRedis(ctx, keys, missIdx, res)
	}
	if len(missIdx) == 0 {
		return res, nil
	}
	missTexts := make([]string, len(missIdx))
	for j, idx := range missIdx {
		missTexts[j] = texts[idx]
	}
	vecs, err := c.base.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, errors.New("op=cache.Embed: encoder returned wrong number of vectors")
	}
	for j, idx := range missIdx {
		res[idx] = vecs[j]
		c.putLocal(keys[idx], vecs[j])
	}
	if c.rdb != nil {
		c.storeRedis(ctx, keys, missIdx, res)
	}
	return res, nil
}

// fillFromRedis resolves what it can from Redis and returns the indices still missing.
// Redis failures degrade to cache misses.
func (c *Encoder) fillFromRedis(ctx context.Context, keys []string, missIdx []int, res [][]float32) []int {
	rk := make([]string, len(missIdx))
	for j, idx := range missIdx {
		rk[j] = keyPrefix + keys[idx]
	}
	vals, err := c.rdb.MGet(ctx, rk...).Result()
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("embedding cache redis read failed", slog.Any("error", err))
		return missIdx
	}
	still := missIdx[:0:0]
	for j, idx := range missIdx {
		s, ok := vals[j].(string)
		if !ok {
			observability.CacheLookup("redis", false)
			still = append(still, idx)
			continue
		}
		v, err := decodeVector([]byte(s))
		if err != nil {
			observability.CacheLookup("redis", false)
			still = append(still, idx)
			continue
		}
		observability.CacheLookup("redis", true)
		res[idx] = v
		c.putLocal(keys[idx], v)
	}
	return still
}

func (c *Encoder) storeRedis(ctx context.Context, keys []string, idx []int, res [][]float32) {
	pipe := c.rdb.Pipeline()
	for _, i := range idx {
		pipe.Set(ctx, keyPrefix+keys[i], encodeVector(res[i]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("embedding cache redis write failed", slog.Any("error", err))
	}
}

func (c *Encoder) getLocal(k string) ([]float32, bool) {
	if c.capacity <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[k]
	return v, ok
}

func (c *Encoder) putLocal(k string, vec []float32) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[k]; exists {
		c.m[k] = vec
		return
	}
	if len(c.ord) >= c.capacity {
		old := c.ord[0]
		c.ord = c.ord[1:]
		delete(c.m, old)
	}
	c.m[k] = vec
	c.ord = append(c.ord, k)
}

// Len reports the number of vectors held in memory.
func (c *Encoder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *Encoder) keyFor(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(h.Sum(nil))
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("cache: truncated vector")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
