package domain

import "fmt"

// Namespace identifies one of the independent vector collections.
type Namespace string

const (
	NamespaceResume Namespace = "resume"
	NamespaceJob    Namespace = "job"
)

// Namespaces lists every namespace in a stable order.
var Namespaces = []Namespace{NamespaceResume, NamespaceJob}

// ParseNamespace validates a namespace name.
func ParseNamespace(s string) (Namespace, error) {
	switch Namespace(s) {
	case NamespaceResume, NamespaceJob:
		return Namespace(s), nil
	}
	return "", fmt.Errorf("%w: unknown namespace %q", ErrInvalidArgument, s)
}

// NoMatchID is the sentinel id an index returns for an empty result slot.
const NoMatchID int64 = -1

// Hit is one raw index result. Score is the inner product of the query and
// the stored vector (cosine for normalized vectors).
type Hit struct {
	ID    int64
	Score float32
}

// Neighbor is a resolved nearest-neighbor result.
type Neighbor struct {
	RecordID        string         `json:"record_id"`
	SimilarityScore float64        `json:"similarity_score"`
	Metadata        map[string]any `json:"metadata"`
}

// Encoder turns text into dense vectors (the embedding model).
//
//go:generate mockery --name=Encoder --with-expecter --filename=encoder_mock.go
type Encoder interface {
	Embed(ctx Context, texts []string) ([][]float32, error)
}

// Searcher answers nearest-neighbor queries against a fixed view of an index.
type Searcher interface {
	// Search returns exactly k hits ordered by descending score; unused slots carry NoMatchID.
	Search(ctx Context, vector []float32, k int) ([]Hit, error)
	Len() int
}

// VectorIndex is a mutable id -> vector index with a single writer.
type VectorIndex interface {
	// Add inserts or replaces the vector stored under id.
	Add(ctx Context, id int64, vector []float32) error
	Remove(ctx Context, id int64) error
	// Lookup returns the vector stored under id, if any.
	Lookup(ctx Context, id int64) ([]float32, bool, error)
	Reset(ctx Context) error
	Len(ctx Context) (int, error)
	// Persist makes the current contents durable.
	Persist(ctx Context) error
	// Snapshot returns a read-only view safe to use concurrently with writers.
	Snapshot() Searcher
}
