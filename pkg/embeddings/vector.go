package embeddings

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when vectors that must share a length do not.
var ErrDimensionMismatch = errors.New("embeddings: dimension mismatch")

// Dot returns the dot product of a and b. Both must have the same length.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

// Cosine returns the cosine similarity of a and b.
// It returns 0 when either vector has zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}

	return Dot(a, b) / (na * nb)
}

// Mean returns the elementwise arithmetic mean of vectors.
// Returns (nil, nil) for an empty input.
func Mean(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	dims := len(vectors[0])
	sums := make([]float64, dims)

	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dims)
		}

		for j, x := range v {
			sums[j] += float64(x)
		}
	}

	n := float64(len(vectors))
	out := make([]float32, dims)

	for j := range sums {
		out[j] = float32(sums[j] / n)
	}

	return out, nil
}
