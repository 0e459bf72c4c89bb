package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrResponseMismatch is returned when a remote encoder answers with the wrong rows.
var ErrResponseMismatch = errors.New("embeddings: response does not match request")

// AzureEncoder calls an Azure OpenAI embeddings deployment.
type AzureEncoder struct {
	client     *openai.Client
	deployment string
	dimensions int
}

var _ Encoder = (*AzureEncoder)(nil)

// NewAzureEncoder creates an encoder for the given resource endpoint and deployment.
// dimensions <= 0 leaves the vector length to the deployment's model.
func NewAzureEncoder(apiKey, endpoint, deployment string, dimensions int) *AzureEncoder {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	cfg.AzureModelMapperFunc = func(string) string { return deployment }

	return &AzureEncoder{
		client:     openai.NewClientWithConfig(cfg),
		deployment: deployment,
		dimensions: dimensions,
	}
}

// Embed sends all texts in one request and returns the vectors in input order.
func (e *AzureEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = strings.TrimSpace(t)
		if inputs[i] == "" {
			return nil, fmt.Errorf("text at index %d: %w", i, ErrEmptyInput)
		}
	}

	req := openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(e.deployment),
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("azure embedding: %w", err)
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d rows, want %d", ErrResponseMismatch, len(resp.Data), len(inputs))
	}

	out := make([][]float32, len(inputs))

	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("%w: unexpected index %d", ErrResponseMismatch, d.Index)
		}

		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrResponseMismatch, len(d.Embedding), e.dimensions)
		}

		out[d.Index] = d.Embedding
	}

	return out, nil
}
