// Package hashing implements a deterministic offline text encoder based on
// signed feature hashing of word unigrams and bigrams.
package hashing

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultDim matches the dimensionality of common small sentence encoders.
const DefaultDim = 384

const bigramWeight = 0.5

// Encoder hashes text features into a fixed number of buckets. It needs no
// model files or network access and is safe for concurrent use.
type Encoder struct {
	dim int
}

// New returns an Encoder producing dim-length vectors (DefaultDim when dim <= 0).
func New(dim int) *Encoder {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Encoder{dim: dim}
}

// Dim returns the output dimensionality.
func (e *Encoder) Dim() int { return e.dim }

// Embed encodes each text into an L2-normalized vector; text without word
// characters encodes to the zero vector.
func (e *Encoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.encode(t)
	}
	return out, nil
}

func (e *Encoder) encode(text string) []float32 {
	acc := make([]float64, e.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#')
	})
	for i, w := range words {
		e.add(acc, w, 1)
		if i > 0 {
			e.add(acc, words[i-1]+" "+w, bigramWeight)
		}
	}
	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, e.dim)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *Encoder) add(acc []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(e.dim))
	if h>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}
