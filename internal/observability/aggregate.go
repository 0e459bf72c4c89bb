package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all hub metric collectors. When metrics are disabled, NewMetrics returns nil.
// Each field is an interface that components receive individually and nil-check.
type Metrics struct {
	Recommender RecommenderMetrics
	Embeddings  EmbeddingMetrics
	Cache       CacheMetrics
	API         APIMetrics
}

// NewMetrics creates every collector from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	recommender, err := NewRecommenderMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("recommender metrics: %w", err)
	}

	embeddings, err := NewEmbeddingMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("embedding metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Recommender: recommender,
		Embeddings:  embeddings,
		Cache:       cache,
		API:         api,
	}, nil
}
