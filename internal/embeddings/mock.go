package embeddings

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	vec "github.com/expertshelf/hub/pkg/embeddings"
)

// MockEncoder returns deterministic unit vectors derived from a SHA-256 of each text.
// Vectors are unrelated to meaning; use it where only determinism matters.
type MockEncoder struct {
	dimensions int
}

// NewMockEncoder creates a mock encoder producing vectors of the given length.
func NewMockEncoder(dimensions int) *MockEncoder {
	return &MockEncoder{dimensions: dimensions}
}

// Embed returns one vector per text. Empty texts are rejected.
func (e *MockEncoder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("text at index %d: %w", i, ErrEmptyInput)
		}

		out[i] = e.vector(text)
	}

	return out, nil
}

func (e *MockEncoder) vector(text string) []float32 {
	hash := sha256.Sum256([]byte(text))
	v := make([]float32, e.dimensions)

	for i := range v {
		// bytes cycled into [-1, 1]
		v[i] = (float32(hash[i%len(hash)]) / 127.5) - 1.0
	}

	vec.NormalizeL2(v)

	return v
}

var _ Encoder = (*MockEncoder)(nil)
