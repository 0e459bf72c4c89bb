package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/expertshelf/hub/internal/config"
	"github.com/expertshelf/hub/internal/embeddings"
	"github.com/expertshelf/hub/internal/googleai"
	"github.com/expertshelf/hub/internal/openai"
	"github.com/expertshelf/hub/internal/tei"
)

var errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

// newEncoder builds the text encoder selected by EMBEDDING_PROVIDER.
func newEncoder(ctx context.Context, cfg *config.Config) (embeddings.Encoder, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderHashing:
		enc, err := embeddings.NewHashingEncoder(cfg.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("create hashing encoder: %w", err)
		}

		return enc, nil
	case config.EmbeddingProviderMock:
		return embeddings.NewMockEncoder(cfg.EmbeddingDimensions), nil
	case config.EmbeddingProviderTEI:
		return tei.NewClient(tei.Options{
			BaseURL:    cfg.EmbeddingServiceURL,
			APIKey:     cfg.EmbeddingProviderAPIKey,
			Dimensions: cfg.EmbeddingDimensions,
			Normalize:  true,
			Truncate:   true,
		}), nil
	case config.EmbeddingProviderOpenAI:
		return openai.NewClient(cfg.EmbeddingProviderAPIKey,
			openai.WithModel(cfg.EmbeddingModel),
			openai.WithDimensions(cfg.EmbeddingDimensions),
		), nil
	case config.EmbeddingProviderAzure:
		return embeddings.NewAzureEncoder(cfg.EmbeddingProviderAPIKey, cfg.EmbeddingServiceURL,
			cfg.EmbeddingModel, cfg.EmbeddingDimensions), nil
	case config.EmbeddingProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.EmbeddingProviderAPIKey,
			googleai.WithModel(cfg.EmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimensions),
		)
		if err != nil {
			return nil, fmt.Errorf("create google embedding client: %w", err)
		}

		return client, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}

// newRateLimiter returns a per-batch limiter for remote encoders, or nil when disabled
// or when the encoder runs in-process.
func newRateLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.EmbeddingRateLimit <= 0 || cfg.EmbeddingProvider == config.EmbeddingProviderHashing ||
		cfg.EmbeddingProvider == config.EmbeddingProviderMock {
		return nil
	}

	return rate.NewLimiter(rate.Limit(cfg.EmbeddingRateLimit), 1)
}
