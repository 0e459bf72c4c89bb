package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics records in-process cache hits and misses, labelled by cache name.
type CacheMetrics interface {
	RecordHits(ctx context.Context, cacheName string, n int)
	RecordMisses(ctx context.Context, cacheName string, n int)
}

type cacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewCacheMetrics creates CacheMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewCacheMetrics(meter metric.Meter) (CacheMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	hits, err := meter.Int64Counter(
		MetricNameCacheHits,
		metric.WithDescription("Lookups served from an in-process cache. Label cache: label_embedding."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache hits counter: %w", err)
	}

	misses, err := meter.Int64Counter(
		MetricNameCacheMisses,
		metric.WithDescription("Lookups that missed an in-process cache and went to the encoder."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache misses counter: %w", err)
	}

	return &cacheMetrics{hits: hits, misses: misses}, nil
}

func attrCache(name string) attribute.KeyValue {
	return attribute.String(AttrCache, NormalizeCacheName(name))
}

func (c *cacheMetrics) RecordHits(ctx context.Context, cacheName string, n int) {
	if n <= 0 {
		return
	}

	c.hits.Add(ctx, int64(n), metric.WithAttributes(attrCache(cacheName)))
}

func (c *cacheMetrics) RecordMisses(ctx context.Context, cacheName string, n int) {
	if n <= 0 {
		return
	}

	c.misses.Add(ctx, int64(n), metric.WithAttributes(attrCache(cacheName)))
}
