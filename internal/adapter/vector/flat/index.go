// Package flat provides an exact inner-product vector index persisted to a single binary file.
//
// Appends share backing arrays with earlier snapshots, which only ever read
// within their own length; replacements and removals copy. A snapshot is
// therefore immutable and safe to search while a writer mutates the index.
package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

const (
	fileMagic   = "RMFX"
	fileVersion = uint32(1)
)

// ErrCorrupt reports an unreadable or inconsistent index file.
var ErrCorrupt = errors.New("flat index: corrupt file")

// Index is an exact, brute-force inner-product index. Writers must be serialized
// by the caller; Snapshot and searches on snapshots may run concurrently.
type Index struct {
	mu   sync.Mutex
	path string
	dim  int
	ids  []int64
	data []float32
	pos  map[int64]int
	view atomic.Pointer[view]
}

// New returns an empty in-memory index that persists to path (empty path disables persistence).
func New(path string, dim int) *Index {
	ix := &Index{path: path, dim: dim, pos: map[int64]int{}}
	ix.publish()
	return ix
}

// Open loads the index at path. A missing file yields an empty index; an
// unreadable or mismatched file is logged and also yields an empty index.
func Open(path string, dim int) *Index {
	ix := New(path, dim)
	ids, data, err := readFile(path, dim)
	switch {
	case err == nil:
		ix.ids, ix.data = ids, data
		for i, id := range ids {
			ix.pos[id] = i
		}
		ix.publish()
	case errors.Is(err, fs.ErrNotExist):
	default:
		slog.Warn("vector index unreadable; starting empty", slog.String("path", path), slog.Any("error", err))
	}
	return ix
}

// Dim returns the vector dimension.
func (ix *Index) Dim() int { return ix.dim }

// Add inserts or replaces the vector stored under id.
func (ix *Index) Add(_ context.Context, id int64, vector []float32) error {
	if id == domain.NoMatchID {
		return fmt.Errorf("%w: id %d is reserved", domain.ErrInvalidArgument, id)
	}
	if len(vector) != ix.dim {
		return fmt.Errorf("%w: vector dim %d, index dim %d", domain.ErrInvalidArgument, len(vector), ix.dim)
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: vector contains non-finite values", domain.ErrInvalidArgument)
		}
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if p, ok := ix.pos[id]; ok {
		data := make([]float32, len(ix.data))
		copy(data, ix.data)
		copy(data[p*ix.dim:(p+1)*ix.dim], vector)
		ix.data = data
	} else {
		ix.pos[id] = len(ix.ids)
		ix.ids = append(ix.ids, id)
		ix.data = append(ix.data, vector...)
	}
	ix.publish()
	return nil
}

// Remove deletes id; removing an unknown id is a no-op.
func (ix *Index) Remove(_ context.Context, id int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	p, ok := ix.pos[id]
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(ix.ids)-1)
	ids = append(append(ids, ix.ids[:p]...), ix.ids[p+1:]...)
	data := make([]float32, 0, len(ix.data)-ix.dim)
	data = append(append(data, ix.data[:p*ix.dim]...), ix.data[(p+1)*ix.dim:]...)
	ix.ids, ix.data = ids, data
	ix.pos = make(map[int64]int, len(ids))
	for i, v := range ids {
		ix.pos[v] = i
	}
	ix.publish()
	return nil
}

// Lookup returns a copy of the vector stored under id.
func (ix *Index) Lookup(_ context.Context, id int64) ([]float32, bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	p, ok := ix.pos[id]
	if !ok {
		return nil, false, nil
	}
	out := make([]float32, ix.dim)
	copy(out, ix.data[p*ix.dim:(p+1)*ix.dim])
	return out, true, nil
}

// Reset drops every entry.
func (ix *Index) Reset(_ context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.ids, ix.data, ix.pos = nil, nil, map[int64]int{}
	ix.publish()
	return nil
}

// Len returns the number of stored vectors.
func (ix *Index) Len(_ context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.ids), nil
}

// Snapshot returns an immutable view of the current contents.
func (ix *Index) Snapshot() domain.Searcher { return ix.view.Load() }

// Persist writes the index to a temp file and renames it over the target.
func (ix *Index) Persist(_ context.Context) error {
	if ix.path == "" {
		return nil
	}
	v := ix.view.Load()
	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return fmt.Errorf("op=flat.Persist: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(ix.path), filepath.Base(ix.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("op=flat.Persist: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	w := bufio.NewWriter(tmp)
	if err := writeTo(w, v); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("op=flat.Persist: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("op=flat.Persist: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("op=flat.Persist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("op=flat.Persist: %w", err)
	}
	if err := os.Rename(tmp.Name(), ix.path); err != nil {
		return fmt.Errorf("op=flat.Persist: %w", err)
	}
	return nil
}

func (ix *Index) publish() {
	ix.view.Store(&view{dim: ix.dim, ids: ix.ids[:len(ix.ids):len(ix.ids)], data: ix.data[:len(ix.data):len(ix.data)]})
}

type view struct {
	dim  int
	ids  []int64
	data []float32
}

func (v *view) Len() int { return len(v.ids) }

// Search scores every row and returns exactly k hits; missing slots carry NoMatchID.
func (v *view) Search(_ context.Context, query []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return []domain.Hit{}, nil
	}
	if len(query) != v.dim {
		return nil, fmt.Errorf("%w: query dim %d, index dim %d", domain.ErrInvalidArgument, len(query), v.dim)
	}
	hits := make([]domain.Hit, len(v.ids))
	for i, id := range v.ids {
		row := v.data[i*v.dim : (i+1)*v.dim]
		var s float32
		for j := range row {
			s += row[j] * query[j]
		}
		hits[i] = domain.Hit{ID: id, Score: s}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for len(hits) < k {
		hits = append(hits, domain.Hit{ID: domain.NoMatchID, Score: float32(math.Inf(-1))})
	}
	return hits, nil
}

func writeTo(w io.Writer, v *view) error {
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return err
	}
	header := []any{fileVersion, uint32(v.dim), uint64(len(v.ids))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, v.ids); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v.data)
}

func readFile(path string, dim int) ([]int64, []float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	r := bufio.NewReader(f)
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return nil, nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	var version, fileDim uint32
	var count uint64
	for _, p := range []any{&version, &fileDim, &count} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
		}
	}
	if version != fileVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	if int(fileDim) != dim {
		return nil, nil, fmt.Errorf("%w: file dim %d, expected %d", ErrCorrupt, fileDim, dim)
	}
	headerSize := int64(len(fileMagic) + 4 + 4 + 8)
	if want := headerSize + int64(count)*8 + int64(count)*int64(dim)*4; want != st.Size() {
		return nil, nil, fmt.Errorf("%w: size %d, expected %d", ErrCorrupt, st.Size(), want)
	}
	ids := make([]int64, count)
	if err := binary.Read(r, binary.LittleEndian, ids); err != nil {
		return nil, nil, fmt.Errorf("%w: ids: %v", ErrCorrupt, err)
	}
	data := make([]float32, int(count)*dim)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, nil, fmt.Errorf("%w: vectors: %v", ErrCorrupt, err)
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == domain.NoMatchID {
			return nil, nil, fmt.Errorf("%w: duplicate or reserved id %d", ErrCorrupt, id)
		}
		seen[id] = struct{}{}
	}
	return ids, data, nil
}
