// Package embeddings provides vector math for topic embeddings (normalization, norms, means, cosine scoring).
package embeddings

import (
	"math"
)

// NormalizeL2 scales vector in place to unit length. A zero vector is left untouched.
func NormalizeL2(vector []float32) {
	sumSquares := sumOfSquares(vector)
	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	return math.Sqrt(sumOfSquares(v))
}

func sumOfSquares(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	return sum
}
