// Package vecmath provides the small dense-vector helpers shared by the scorers and the embedding store.
package vecmath

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// widen copies v into float64 so gonum's kernels can work on it.
func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Dot returns the inner product of a and b, or 0 when the lengths differ.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return floats.Dot(widen(a), widen(b))
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	return floats.Norm(widen(v), 2)
}

// Cosine returns the cosine similarity of a and b in [-1,1].
// Empty, zero-norm or mismatched vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	wa, wb := widen(a), widen(b)
	na, nb := floats.Norm(wa, 2), floats.Norm(wb, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	c := floats.Dot(wa, wb) / (na * nb)
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(-1, math.Min(1, c))
}

// Percent rescales a cosine to a 0..100 similarity, flooring negatives at 0.
func Percent(cos float64) float64 {
	return math.Max(0, math.Min(100, cos*100))
}

// Normalize returns a unit-length copy of v. A zero vector is returned unchanged (copied).
func Normalize(v []float32) []float32 {
	w := widen(v)
	out := make([]float32, len(v))
	n := floats.Norm(w, 2)
	if n == 0 {
		copy(out, v)
		return out
	}
	floats.Scale(1/n, w)
	for i, x := range w {
		out[i] = float32(x)
	}
	return out
}
