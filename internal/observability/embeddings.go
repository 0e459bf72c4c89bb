package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EmbeddingMetrics records text encoder batch metrics.
type EmbeddingMetrics interface {
	RecordBatch(ctx context.Context, status string, duration time.Duration, size int)
}

type embeddingMetrics struct {
	batches  metric.Int64Counter
	duration metric.Float64Histogram
	texts    metric.Int64Counter
}

// NewEmbeddingMetrics creates EmbeddingMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEmbeddingMetrics(meter metric.Meter) (EmbeddingMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	batches, err := meter.Int64Counter(
		MetricNameEncodeBatches,
		metric.WithDescription("Encoder batches by status (success, failed, cancelled)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create encode batches counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameEncodeBatchDuration,
		metric.WithDescription("Encoder batch duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create encode batch duration histogram: %w", err)
	}

	texts, err := meter.Int64Counter(
		MetricNameEncodedTexts,
		metric.WithDescription("Texts sent to the encoder (memo misses only)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create encoded texts counter: %w", err)
	}

	return &embeddingMetrics{batches: batches, duration: duration, texts: texts}, nil
}

func (e *embeddingMetrics) RecordBatch(ctx context.Context, status string, duration time.Duration, size int) {
	attrs := metric.WithAttributes(attribute.String(AttrStatus, NormalizeReason(status, AllowedEncodeStatuses)))
	e.batches.Add(ctx, 1, attrs)
	e.duration.Record(ctx, duration.Seconds(), attrs)

	if status == "success" {
		e.texts.Add(ctx, int64(size))
	}
}
