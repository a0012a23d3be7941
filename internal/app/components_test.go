package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/encoder/cache"
	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/encoder/openai"
	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/vector/flat"
	"github.com/fairyhunter13/ai-resume-matcher/internal/config"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

func TestNewRedis(t *testing.T) {
	t.Parallel()
	rdb, err := NewRedis(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, rdb)

	_, err = NewRedis(config.Config{RedisURL: "://bad"})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	rdb, err = NewRedis(config.Config{RedisURL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	require.NotNil(t, rdb)
	t.Cleanup(func() { _ = rdb.Close() })
	assert.NoError(t, rdb.Ping(context.Background()).Err())
}

func TestNewQdrant(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewQdrant(config.Config{VectorBackend: "flat"}))
	assert.NotNil(t, NewQdrant(config.Config{VectorBackend: "qdrant", QdrantURL: "http://localhost:6333"}))
}

func TestCollectionName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "matcher_resume", CollectionName("matcher", domain.NamespaceResume))
	assert.Equal(t, "job", CollectionName("", domain.NamespaceJob))
}

func TestNewEncoder_HashingWithCache(t *testing.T) {
	t.Parallel()
	enc := NewEncoder(config.Config{EmbeddingDim: 32, EmbedCacheSize: 16}, nil)
	_, ok := enc.(*cache.Encoder)
	require.True(t, ok)
	vecs, err := enc.Embed(context.Background(), []string{"golang backend"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Len(t, vecs[0], 32)
}

func TestNewEncoder_OpenAIWhenKeySet(t *testing.T) {
	t.Parallel()
	cfg := config.Config{EmbeddingDim: 32, OpenAIAPIKey: "sk-test", EmbeddingModel: "m", EmbedRateLimitPerMin: 60}
	enc := NewEncoder(cfg, nil)
	c, ok := enc.(*openai.Client)
	require.True(t, ok)
	assert.Equal(t, "m", c.Model())
}

func TestOpenStore_FlatBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := config.Config{EmbeddingDim: 32, IndexDir: t.TempDir(), VectorBackend: "flat"}
	ix, err := NewIndexFactory(cfg, nil)(ctx, domain.NamespaceJob, 32)
	require.NoError(t, err)
	_, ok := ix.(*flat.Index)
	assert.True(t, ok)

	st, err := OpenStore(ctx, cfg, NewEncoder(cfg, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, 32, st.Dim())
	_, err = st.Store(ctx, domain.NamespaceJob, "j1", "go backend engineer", map[string]any{"title": "Backend"})
	require.NoError(t, err)
	got, err := st.QueryNearestText(ctx, domain.NamespaceJob, "go backend engineer", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "j1", got[0].RecordID)
	require.NoError(t, st.Close(ctx))
}

func TestNewEngine(t *testing.T) {
	t.Parallel()
	e, err := NewEngine(config.Config{HardMatchWeight: 0.4, SoftMatchWeight: 0.6, HighThreshold: 75, MediumThreshold: 50}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictHigh, e.Verdict(80))

	_, err = NewEngine(config.Config{HardMatchWeight: 0.4, SoftMatchWeight: 0.6, HighThreshold: 40, MediumThreshold: 50}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
