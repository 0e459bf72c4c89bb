// Package embeddings defines the text encoder contract and the in-process encoders.
package embeddings

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned when an encoder is asked to embed an empty string.
var ErrEmptyInput = errors.New("embeddings: input text is empty")

// Encoder maps a batch of strings to fixed-dimension vectors.
// The result has one row per input, in input order.
type Encoder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
