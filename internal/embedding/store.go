// Package embedding owns text embeddings and the per-namespace nearest-neighbor
// indexes built from them.
//
// Every namespace pairs a domain.VectorIndex with a metadata map keyed by the
// same 63-bit ids. Writers hold the namespace mutex; readers load the last
// published snapshot and never block on writers.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-resume-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
	"github.com/fairyhunter13/ai-resume-matcher/pkg/vecmath"
)

// dimensionSample is embedded once at Open to learn the model dimension.
const dimensionSample = "dimension check"

// rebuildBatch bounds the texts sent to the encoder per call during a rebuild.
const rebuildBatch = 64

// Recovery describes what a write had to do to keep a namespace consistent.
type Recovery int

const (
	RecoveryNone Recovery = iota
	// RecoveryRebuilt means the index was rebuilt from cached text without loss.
	RecoveryRebuilt
	// RecoveryDataLoss means entries without cached text were dropped during a rebuild.
	RecoveryDataLoss
)

func (r Recovery) String() string {
	switch r {
	case RecoveryRebuilt:
		return "rebuilt"
	case RecoveryDataLoss:
		return "data_loss"
	default:
		return "none"
	}
}

// IndexFactory opens the vector index backing a namespace.
type IndexFactory func(ctx context.Context, ns domain.Namespace, dim int) (domain.VectorIndex, error)

// Options configures a Store.
type Options struct {
	Encoder domain.Encoder
	// Dir holds the metadata files (and the index files for file-backed indexes).
	Dir      string
	NewIndex IndexFactory
}

// Entry is the metadata recorded for one stored vector.
type Entry struct {
	RecordID string         `json:"record_id"`
	Metadata map[string]any `json:"metadata"`
	// Text is the embedded text; nil for entries that cannot be re-embedded.
	Text *string `json:"text,omitempty"`
}

// StoreResult reports the outcome of a successful Store.
type StoreResult struct {
	ID       int64
	Vector   []float32
	Recovery Recovery
	// Replaced is true when the record was already indexed.
	Replaced bool
}

// RebuildReport summarizes a namespace rebuild.
type RebuildReport struct {
	Namespace  domain.Namespace `json:"namespace"`
	Reembedded int              `json:"reembedded"`
	Dropped    int              `json:"dropped"`
	Size       int              `json:"size"`
}

// Recovery classifies the rebuild.
func (r RebuildReport) Recovery() Recovery {
	if r.Dropped > 0 {
		return RecoveryDataLoss
	}
	return RecoveryRebuilt
}

type snapshot struct {
	searcher domain.Searcher
	meta     map[int64]Entry
}

type space struct {
	ns       domain.Namespace
	metaPath string

	mu    sync.Mutex
	index domain.VectorIndex
	meta  map[int64]Entry

	snap atomic.Pointer[snapshot]
}

// Store embeds text and answers nearest-neighbor queries per namespace.
type Store struct {
	enc    domain.Encoder
	dim    int
	dir    string
	spaces map[domain.Namespace]*space
}

var tracer = otel.Tracer("embedding.store")

// Open asks the encoder for its dimension, opens every namespace index and
// reconciles it with its metadata. An encoder failure here is fatal.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Encoder == nil || opts.NewIndex == nil {
		return nil, fmt.Errorf("op=embedding.Open: %w: encoder and index factory are required", domain.ErrInvalidArgument)
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("op=embedding.Open: %w: index dir is required", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("op=embedding.Open: %w", err)
	}
	sample, err := opts.Encoder.Embed(ctx, []string{dimensionSample})
	if err != nil {
		return nil, fmt.Errorf("op=embedding.Open: dimension check: %w", err)
	}
	if len(sample) != 1 || len(sample[0]) == 0 {
		return nil, fmt.Errorf("op=embedding.Open: %w: encoder returned no vector", domain.ErrInternal)
	}
	s := &Store{enc: opts.Encoder, dim: len(sample[0]), dir: opts.Dir, spaces: map[domain.Namespace]*space{}}
	lg := obsctx.LoggerFromContext(ctx)
	for _, ns := range domain.Namespaces {
		ix, err := opts.NewIndex(ctx, ns, s.dim)
		if err != nil {
			return nil, fmt.Errorf("op=embedding.Open: namespace %s: %w", ns, err)
		}
		sp := &space{ns: ns, index: ix, metaPath: filepath.Join(opts.Dir, string(ns)+"_meta.json")}
		sp.meta = loadMeta(ctx, sp.metaPath)
		n, err := ix.Len(ctx)
		if err != nil {
			return nil, fmt.Errorf("op=embedding.Open: namespace %s: %w", ns, err)
		}
		s.spaces[ns] = sp
		if n != len(sp.meta) {
			lg.Warn("vector index and metadata disagree; rebuilding",
				slog.String("namespace", string(ns)), slog.Int("index_size", n), slog.Int("meta_size", len(sp.meta)))
			if _, err := s.rebuildLocked(ctx, sp); err != nil {
				return nil, fmt.Errorf("op=embedding.Open: %w", err)
			}
			continue
		}
		sp.publish()
	}
	return s, nil
}

// Close flushes every namespace index.
func (s *Store) Close(ctx context.Context) error {
	var errs []error
	for _, ns := range domain.Namespaces {
		sp := s.spaces[ns]
		sp.mu.Lock()
		if err := sp.index.Persist(ctx); err != nil {
			errs = append(errs, fmt.Errorf("namespace %s: %w", ns, err))
		}
		sp.mu.Unlock()
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("op=embedding.Close: %w", err)
	}
	return nil
}

// Dim returns the embedding dimension of the configured model.
func (s *Store) Dim() int { return s.dim }

// Embed returns the unit-length embedding of text. Blank text maps to the
// zero vector without calling the encoder.
func (s *Store) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, s.dim), nil
	}
	vecs, err := s.enc.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("op=embedding.Embed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != s.dim {
		return nil, fmt.Errorf("op=embedding.Embed: %w: unexpected encoder output", domain.ErrInternal)
	}
	return vecmath.Normalize(vecs[0]), nil
}

// Similarity is the cosine of a and b on a 0..100 scale.
func Similarity(a, b []float32) float64 {
	return vecmath.Percent(vecmath.Cosine(a, b))
}

// StableID derives the 63-bit index id of a record: the first eight bytes of
// SHA-256(recordID), big endian, top bit cleared.
func StableID(recordID string) int64 {
	sum := sha256.Sum256([]byte(recordID))
	return int64(binary.BigEndian.Uint64(sum[:8]) & math.MaxInt64)
}

func (s *Store) space(ns domain.Namespace) (*space, error) {
	sp, ok := s.spaces[ns]
	if !ok {
		return nil, fmt.Errorf("%w: unknown namespace %q", domain.ErrInvalidArgument, ns)
	}
	return sp, nil
}

// Store embeds text and upserts it under recordID. Re-storing a record
// replaces its vector. If persisting fails nothing changes and the error
// wraps domain.ErrRetryable.
func (s *Store) Store(ctx context.Context, ns domain.Namespace, recordID, text string, metadata map[string]any) (StoreResult, error) {
	ctx, span := tracer.Start(ctx, "embedding.Store")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", string(ns)))

	if strings.TrimSpace(recordID) == "" {
		return StoreResult{}, fmt.Errorf("op=embedding.Store: %w: record id is required", domain.ErrInvalidArgument)
	}
	sp, err := s.space(ns)
	if err != nil {
		return StoreResult{}, fmt.Errorf("op=embedding.Store: %w", err)
	}
	vec, err := s.Embed(ctx, text)
	if err != nil {
		return StoreResult{}, fmt.Errorf("op=embedding.Store: %w", err)
	}
	id := StableID(recordID)
	res := StoreResult{ID: id, Vector: vec}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	n, err := sp.index.Len(ctx)
	if err != nil {
		return StoreResult{}, fmt.Errorf("op=embedding.Store: %w: index size: %v", domain.ErrRetryable, err)
	}
	if n != len(sp.meta) {
		obsctx.LoggerFromContext(ctx).Warn("index and metadata sizes differ; rebuilding",
			slog.String("namespace", string(ns)), slog.Int("index", n), slog.Int("metadata", len(sp.meta)))
		rep, err := s.rebuildLocked(ctx, sp)
		if err != nil {
			return StoreResult{}, fmt.Errorf("op=embedding.Store: %w", err)
		}
		res.Recovery = rep.Recovery()
	}

	prev, hadPrev, err := sp.index.Lookup(ctx, id)
	if err != nil {
		return StoreResult{}, fmt.Errorf("op=embedding.Store: %w: %v", domain.ErrRetryable, err)
	}
	if err := sp.index.Add(ctx, id, vec); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("index rejected insert; rebuilding",
			slog.String("namespace", string(ns)), slog.Any("error", err))
		rep, rerr := s.rebuildLocked(ctx, sp)
		if rerr != nil {
			return StoreResult{}, fmt.Errorf("op=embedding.Store: %w", rerr)
		}
		if rep.Recovery() > res.Recovery {
			res.Recovery = rep.Recovery()
		}
		if prev, hadPrev, err = sp.index.Lookup(ctx, id); err != nil {
			return StoreResult{}, fmt.Errorf("op=embedding.Store: %w: %v", domain.ErrRetryable, err)
		}
		if err := sp.index.Add(ctx, id, vec); err != nil {
			return StoreResult{}, fmt.Errorf("op=embedding.Store: %w: %v", domain.ErrRetryable, err)
		}
	}

	next := make(map[int64]Entry, len(sp.meta)+1)
	for k, v := range sp.meta {
		next[k] = v
	}
	_, res.Replaced = sp.meta[id]
	next[id] = Entry{RecordID: recordID, Metadata: cloneMap(metadata), Text: &text}

	if err := s.persistLocked(ctx, sp, next); err != nil {
		s.rollbackLocked(ctx, sp, id, prev, hadPrev)
		return StoreResult{}, fmt.Errorf("op=embedding.Store: %w: %v", domain.ErrRetryable, err)
	}
	sp.meta = next
	sp.publish()
	observability.SetIndexSize(string(ns), len(next))
	return res, nil
}

// Delete removes recordID from ns. Unknown records are a no-op. If persisting
// fails the entry is restored and the error wraps domain.ErrRetryable.
func (s *Store) Delete(ctx context.Context, ns domain.Namespace, recordID string) error {
	ctx, span := tracer.Start(ctx, "embedding.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", string(ns)))

	sp, err := s.space(ns)
	if err != nil {
		return fmt.Errorf("op=embedding.Delete: %w", err)
	}
	id := StableID(recordID)
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if _, ok := sp.meta[id]; !ok {
		return nil
	}
	prev, hadPrev, err := sp.index.Lookup(ctx, id)
	if err != nil {
		return fmt.Errorf("op=embedding.Delete: %w: %v", domain.ErrRetryable, err)
	}
	if err := sp.index.Remove(ctx, id); err != nil {
		return fmt.Errorf("op=embedding.Delete: %w: %v", domain.ErrRetryable, err)
	}
	next := make(map[int64]Entry, len(sp.meta))
	for k, v := range sp.meta {
		if k != id {
			next[k] = v
		}
	}
	if err := s.persistLocked(ctx, sp, next); err != nil {
		if hadPrev {
			if aerr := sp.index.Add(ctx, id, prev); aerr != nil {
				obsctx.LoggerFromContext(ctx).Error("restoring deleted entry failed; namespace will be rebuilt on next write",
					slog.String("namespace", string(ns)), slog.Any("error", aerr))
			}
		}
		return fmt.Errorf("op=embedding.Delete: %w: %v", domain.ErrRetryable, err)
	}
	sp.meta = next
	sp.publish()
	observability.SetIndexSize(string(ns), len(next))
	return nil
}

// rollbackLocked restores the index entry for id after a failed persist.
func (s *Store) rollbackLocked(ctx context.Context, sp *space, id int64, prev []float32, hadPrev bool) {
	lg := obsctx.LoggerFromContext(ctx)
	var err error
	if hadPrev {
		err = sp.index.Add(ctx, id, prev)
	} else {
		err = sp.index.Remove(ctx, id)
	}
	if err != nil {
		lg.Error("rollback failed; namespace will be rebuilt on next write",
			slog.String("namespace", string(sp.ns)), slog.Any("error", err))
		return
	}
	if err := sp.index.Persist(ctx); err != nil {
		lg.Warn("re-persisting index after rollback failed", slog.String("namespace", string(sp.ns)), slog.Any("error", err))
	}
}

func (s *Store) persistLocked(ctx context.Context, sp *space, meta map[int64]Entry) error {
	if err := sp.index.Persist(ctx); err != nil {
		return err
	}
	return writeMeta(sp.metaPath, meta)
}

// QueryNearest returns up to k entries of ns closest to vector, most similar first.
func (s *Store) QueryNearest(ctx context.Context, ns domain.Namespace, vector []float32, k int) ([]domain.Neighbor, error) {
	ctx, span := tracer.Start(ctx, "embedding.QueryNearest")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", string(ns)), attribute.Int("k", k))

	sp, err := s.space(ns)
	if err != nil {
		return nil, fmt.Errorf("op=embedding.QueryNearest: %w", err)
	}
	snap := sp.snap.Load()
	out := []domain.Neighbor{}
	if k <= 0 || len(snap.meta) == 0 || snap.searcher.Len() == 0 {
		return out, nil
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("op=embedding.QueryNearest: %w: vector has dimension %d, want %d",
			domain.ErrInvalidArgument, len(vector), s.dim)
	}
	if n := snap.searcher.Len(); k > n {
		k = n
	}
	hits, err := snap.searcher.Search(ctx, vecmath.Normalize(vector), k)
	if err != nil {
		return nil, fmt.Errorf("op=embedding.QueryNearest: %w", err)
	}
	for _, h := range hits {
		if h.ID == domain.NoMatchID {
			continue
		}
		e, ok := snap.meta[h.ID]
		if !ok {
			continue
		}
		out = append(out, domain.Neighbor{
			RecordID:        e.RecordID,
			SimilarityScore: vecmath.Percent(float64(h.Score)),
			Metadata:        cloneMap(e.Metadata),
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// QueryNearestText embeds text and queries ns with it.
func (s *Store) QueryNearestText(ctx context.Context, ns domain.Namespace, text string, k int) ([]domain.Neighbor, error) {
	vec, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.QueryNearest(ctx, ns, vec, k)
}

// Len returns the number of entries visible to readers of ns.
func (s *Store) Len(ns domain.Namespace) int {
	sp, err := s.space(ns)
	if err != nil {
		return 0
	}
	return len(sp.snap.Load().meta)
}

// Rebuild re-embeds the cached text of every entry in ns into a fresh index.
func (s *Store) Rebuild(ctx context.Context, ns domain.Namespace) (RebuildReport, error) {
	ctx, span := tracer.Start(ctx, "embedding.Rebuild")
	defer span.End()
	sp, err := s.space(ns)
	if err != nil {
		return RebuildReport{}, fmt.Errorf("op=embedding.Rebuild: %w", err)
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return s.rebuildLocked(ctx, sp)
}

func (s *Store) rebuildLocked(ctx context.Context, sp *space) (RebuildReport, error) {
	rep := RebuildReport{Namespace: sp.ns}
	fail := func(err error) (RebuildReport, error) {
		observability.IndexRebuilt(string(sp.ns), "failed")
		return RebuildReport{}, fmt.Errorf("op=embedding.Rebuild: namespace %s: %w", sp.ns, err)
	}

	ids := make([]int64, 0, len(sp.meta))
	for id := range sp.meta {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	kept := make(map[int64]Entry, len(ids))
	var pending []int64
	for _, id := range ids {
		if sp.meta[id].Text == nil {
			rep.Dropped++
			continue
		}
		pending = append(pending, id)
	}
	vecs, err := s.embedEntries(ctx, sp.meta, pending)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrRetryable, err))
	}
	if err := sp.index.Reset(ctx); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrIndexCorrupt, err))
	}
	for i, id := range pending {
		if err := sp.index.Add(ctx, id, vecs[i]); err != nil {
			return fail(fmt.Errorf("%w: %v", domain.ErrIndexCorrupt, err))
		}
		kept[id] = sp.meta[id]
		rep.Reembedded++
	}
	if err := s.persistLocked(ctx, sp, kept); err != nil {
		// The in-memory index is consistent with kept; only durability is missing.
		obsctx.LoggerFromContext(ctx).Warn("persisting rebuilt namespace failed",
			slog.String("namespace", string(sp.ns)), slog.Any("error", err))
	}
	sp.meta = kept
	sp.publish()
	rep.Size = len(kept)

	observability.IndexRebuilt(string(sp.ns), rep.Recovery().String())
	observability.SetIndexSize(string(sp.ns), rep.Size)
	lg := obsctx.LoggerFromContext(ctx)
	if rep.Dropped > 0 {
		lg.Error("namespace rebuilt with data loss", slog.String("namespace", string(sp.ns)),
			slog.Int("reembedded", rep.Reembedded), slog.Int("dropped", rep.Dropped))
	} else {
		lg.Info("namespace rebuilt", slog.String("namespace", string(sp.ns)), slog.Int("reembedded", rep.Reembedded))
	}
	return rep, nil
}

// embedEntries embeds the cached text of ids in batches; blank text maps to the zero vector.
func (s *Store) embedEntries(ctx context.Context, meta map[int64]Entry, ids []int64) ([][]float32, error) {
	out := make([][]float32, len(ids))
	var batch []int
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		for j, i := range batch {
			texts[j] = *meta[ids[i]].Text
		}
		vecs, err := s.enc.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("%w: encoder returned %d vectors for %d texts", domain.ErrInternal, len(vecs), len(batch))
		}
		for j, i := range batch {
			if len(vecs[j]) != s.dim {
				return fmt.Errorf("%w: encoder dimension changed", domain.ErrInternal)
			}
			out[i] = vecmath.Normalize(vecs[j])
		}
		batch = batch[:0]
		return nil
	}
	for i, id := range ids {
		if strings.TrimSpace(*meta[id].Text) == "" {
			out[i] = make([]float32, s.dim)
			continue
		}
		batch = append(batch, i)
		if len(batch) == rebuildBatch {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func (sp *space) publish() {
	sp.snap.Store(&snapshot{searcher: sp.index.Snapshot(), meta: sp.meta})
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
