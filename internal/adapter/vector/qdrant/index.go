package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
)

// DistanceCosine is the collection metric used for embedding namespaces.
const DistanceCosine = "Cosine"

// Index adapts one Qdrant collection to domain.VectorIndex. Writes are applied
// synchronously (wait=true), so Persist has nothing left to flush.
type Index struct {
	client     *Client
	collection string
	dim        int
	size       atomic.Int64
}

// OpenIndex ensures the collection exists and caches its current size.
func OpenIndex(ctx context.Context, client *Client, collection string, dim int) (*Index, error) {
	if err := client.EnsureCollection(ctx, collection, dim, DistanceCosine); err != nil {
		return nil, fmt.Errorf("op=qdrant.OpenIndex: %w", err)
	}
	ix := &Index{client: client, collection: collection, dim: dim}
	if _, err := ix.Len(ctx); err != nil {
		return nil, fmt.Errorf("op=qdrant.OpenIndex: %w", err)
	}
	return ix, nil
}

// Collection returns the backing collection name.
func (ix *Index) Collection() string { return ix.collection }

func (ix *Index) Add(ctx context.Context, id int64, vector []float32) error {
	if len(vector) != ix.dim {
		return fmt.Errorf("%w: vector dim %d, index dim %d", domain.ErrInvalidArgument, len(vector), ix.dim)
	}
	if err := ix.client.UpsertPoints(ctx, ix.collection, []Point{{ID: id, Vector: vector, Payload: map[string]any{}}}); err != nil {
		return fmt.Errorf("op=qdrant.Add: %w", err)
	}
	ix.refreshSize(ctx)
	return nil
}

func (ix *Index) Remove(ctx context.Context, id int64) error {
	if err := ix.client.DeletePoints(ctx, ix.collection, []int64{id}); err != nil {
		return fmt.Errorf("op=qdrant.Remove: %w", err)
	}
	ix.refreshSize(ctx)
	return nil
}

// refreshSize updates the cached point count after a write. The write itself
// already succeeded, so a failed count only leaves the cached size stale.
func (ix *Index) refreshSize(ctx context.Context) {
	if _, err := ix.Len(ctx); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("refreshing qdrant point count failed",
			slog.String("collection", ix.collection), slog.Any("error", err))
	}
}

func (ix *Index) Lookup(ctx context.Context, id int64) ([]float32, bool, error) {
	p, err := ix.client.GetPoint(ctx, ix.collection, id)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("op=qdrant.Lookup: %w", err)
	}
	return p.Vector, true, nil
}

// Reset drops and recreates the collection.
func (ix *Index) Reset(ctx context.Context) error {
	if err := ix.client.DeleteCollection(ctx, ix.collection); err != nil {
		return fmt.Errorf("op=qdrant.Reset: %w", err)
	}
	if err := ix.client.EnsureCollection(ctx, ix.collection, ix.dim, DistanceCosine); err != nil {
		return fmt.Errorf("op=qdrant.Reset: %w", err)
	}
	ix.size.Store(0)
	return nil
}

func (ix *Index) Len(ctx context.Context) (int, error) {
	n, err := ix.client.Count(ctx, ix.collection)
	if err != nil {
		return 0, fmt.Errorf("op=qdrant.Len: %w", err)
	}
	ix.size.Store(int64(n))
	return n, nil
}

func (ix *Index) Persist(context.Context) error { return nil }

// Snapshot returns a searcher over the live collection; Len reports the size
// observed after the last write.
func (ix *Index) Snapshot() domain.Searcher {
	return &searcher{ix: ix, n: int(ix.size.Load())}
}

type searcher struct {
	ix *Index
	n  int
}

func (s *searcher) Len() int { return s.n }

func (s *searcher) Search(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return []domain.Hit{}, nil
	}
	pts, err := s.ix.client.Search(ctx, s.ix.collection, vector, k)
	if err != nil {
		return nil, fmt.Errorf("op=qdrant.Search: %w", err)
	}
	hits := make([]domain.Hit, 0, len(pts))
	for _, p := range pts {
		hits = append(hits, domain.Hit{ID: p.ID, Score: p.Score})
	}
	for len(hits) < k {
		hits = append(hits, domain.Hit{ID: domain.NoMatchID})
	}
	return hits, nil
}
