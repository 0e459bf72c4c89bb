package embeddings

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	vec "github.com/expertshelf/hub/pkg/embeddings"
)

// ErrInvalidDims is returned when the configured dimension is not positive.
var ErrInvalidDims = errors.New("embeddings: dimensions must be positive")

const (
	ngramSize   = 3
	wordWeight  = 1.0
	ngramWeight = 0.5
)

// HashingEncoder is an offline encoder using signed feature hashing of
// lower-cased words and character trigrams. Labels that share words or
// word stems land close together; no model download is needed.
type HashingEncoder struct {
	dimensions int
}

// NewHashingEncoder creates a hashing encoder with the given output dimension.
func NewHashingEncoder(dimensions int) (*HashingEncoder, error) {
	if dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	return &HashingEncoder{dimensions: dimensions}, nil
}

// Dimensions returns the output vector length.
func (e *HashingEncoder) Dimensions() int {
	return e.dimensions
}

// Embed returns one L2-normalized vector per text. It is CPU-bound and honours ctx between texts.
func (e *HashingEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("hashing encoder: %w", err)
		}

		words := tokenize(text)
		if len(words) == 0 {
			return nil, fmt.Errorf("text at index %d: %w", i, ErrEmptyInput)
		}

		out[i] = e.encode(words)
	}

	return out, nil
}

func (e *HashingEncoder) encode(words []string) []float32 {
	v := make([]float32, e.dimensions)

	for _, w := range words {
		e.add(v, "w:"+w, wordWeight)

		padded := []rune("^" + w + "$")
		for j := 0; j+ngramSize <= len(padded); j++ {
			e.add(v, "g:"+string(padded[j:j+ngramSize]), ngramWeight)
		}
	}

	vec.NormalizeL2(v)

	return v
}

// add hashes feature into a bucket; a second hash bit picks the sign so collisions tend to cancel.
func (e *HashingEncoder) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := sum % uint64(e.dimensions)
	if sum>>63 == 1 {
		weight = -weight
	}

	v[bucket] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

var _ Encoder = (*HashingEncoder)(nil)
