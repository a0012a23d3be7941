// Package app wires application components and startup helpers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/encoder/cache"
	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/encoder/hashing"
	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/encoder/openai"
	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/vector/flat"
	qdrantcli "github.com/fairyhunter13/ai-resume-matcher/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-resume-matcher/internal/config"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	"github.com/fairyhunter13/ai-resume-matcher/internal/embedding"
	"github.com/fairyhunter13/ai-resume-matcher/internal/scoring"
	"github.com/fairyhunter13/ai-resume-matcher/internal/service/ratelimiter"
)

// NewRedis returns a client for cfg.RedisURL, or nil when Redis is not configured.
func NewRedis(cfg config.Config) (redis.UniversalClient, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("op=app.NewRedis: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewQdrant returns a Qdrant client when the qdrant backend is selected.
func NewQdrant(cfg config.Config) *qdrantcli.Client {
	if cfg.VectorBackend != "qdrant" {
		return nil
	}
	return qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
}

// NewEncoder selects the OpenAI encoder when an API key is set and the local
// hashing encoder otherwise, then wraps it in the embedding cache.
func NewEncoder(cfg config.Config, rdb redis.UniversalClient) domain.Encoder {
	var (
		base  domain.Encoder
		model string
	)
	if cfg.UseOpenAI() {
		c := openai.New(cfg)
		if cfg.EmbedRateLimitPerMin > 0 {
			if lim := ratelimiter.NewRedis(rdb, map[string]ratelimiter.Bucket{openai.RateKey: ratelimiter.PerMinute(cfg.EmbedRateLimitPerMin)}); lim != nil {
				c.WithLimiter(lim)
			}
		}
		base, model = c, c.Model()
	} else {
		base, model = hashing.New(cfg.EmbeddingDim), fmt.Sprintf("hashing-%d", cfg.EmbeddingDim)
	}
	slog.Info("embedding encoder selected", slog.String("model", model), slog.Bool("redis_cache", rdb != nil))
	return cache.New(base, cache.Options{Model: model, Capacity: cfg.EmbedCacheSize, Redis: rdb, TTL: cfg.EmbedCacheTTL})
}

// NewIndexFactory returns the namespace index factory for the configured backend.
func NewIndexFactory(cfg config.Config, q *qdrantcli.Client) embedding.IndexFactory {
	if q != nil {
		return func(ctx context.Context, ns domain.Namespace, dim int) (domain.VectorIndex, error) {
			return qdrantcli.OpenIndex(ctx, q, CollectionName(cfg.QdrantCollectionPrefix, ns), dim)
		}
	}
	return func(_ context.Context, ns domain.Namespace, dim int) (domain.VectorIndex, error) {
		return flat.Open(filepath.Join(cfg.IndexDir, string(ns)+"_index.flat"), dim), nil
	}
}

// CollectionName is the Qdrant collection backing ns.
func CollectionName(prefix string, ns domain.Namespace) string {
	if prefix == "" {
		return string(ns)
	}
	return prefix + "_" + string(ns)
}

// OpenStore opens the embedding store for cfg.
func OpenStore(ctx context.Context, cfg config.Config, enc domain.Encoder, q *qdrantcli.Client) (*embedding.Store, error) {
	st, err := embedding.Open(ctx, embedding.Options{Encoder: enc, Dir: cfg.IndexDir, NewIndex: NewIndexFactory(cfg, q)})
	if err != nil {
		return nil, fmt.Errorf("op=app.OpenStore: %w", err)
	}
	return st, nil
}

// NewEngine builds the scoring engine, embedding records that lack a vector through emb.
func NewEngine(cfg config.Config, emb scoring.Embedder) (*scoring.Engine, error) {
	opts := scoring.OptionsFromConfig(cfg)
	opts.Embedder = emb
	e, err := scoring.NewEngine(opts)
	if err != nil {
		return nil, fmt.Errorf("op=app.NewEngine: %w", err)
	}
	return e, nil
}
