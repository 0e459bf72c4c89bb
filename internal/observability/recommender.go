package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RecommenderMetrics records topic index and recommendation metrics.
type RecommenderMetrics interface {
	RecordIndexBuild(ctx context.Context, outcome string, duration time.Duration)
	RecordVectorsReused(ctx context.Context, count int)
	RecordIndexInvalidated(ctx context.Context)
	SetIndexSize(topics int)
	SetRebuildQueueDepth(depth int)
	RecordRecommendation(ctx context.Context, outcome string, duration time.Duration, items int)
	RecordStaleTopicReferences(ctx context.Context, count int)
	RecordRebuildEnqueued(ctx context.Context, reason string)
	RecordRebuildEnqueueError(ctx context.Context, reason string)
	RecordRebuildJob(ctx context.Context, outcome string)
	RecordActivityLogged(ctx context.Context, kind string)
	RecordCatalogRowsImported(ctx context.Context, count int)
}

type recommenderMetrics struct {
	indexBuilds        metric.Int64Counter
	indexBuildDuration metric.Float64Histogram
	vectorsReused      metric.Int64Counter
	invalidations      metric.Int64Counter
	recommendations    metric.Int64Counter
	recommendDuration  metric.Float64Histogram
	recommendedItems   metric.Int64Histogram
	staleRefs          metric.Int64Counter
	rebuildEnqueued    metric.Int64Counter
	rebuildEnqueueErrs metric.Int64Counter
	rebuildJobs        metric.Int64Counter
	activityLogged     metric.Int64Counter
	catalogRows        metric.Int64Counter

	indexSize         atomic.Int64
	rebuildQueueDepth atomic.Int64
}

// NewRecommenderMetrics creates RecommenderMetrics and registers gauges.
// Returns (nil, nil) when meter is nil (metrics disabled).
//
//nolint:funlen // one block per instrument
func NewRecommenderMetrics(meter metric.Meter) (RecommenderMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	m := &recommenderMetrics{}

	var err error

	if m.indexBuilds, err = meter.Int64Counter(
		MetricNameIndexBuilds,
		metric.WithDescription("Topic index builds by outcome"),
	); err != nil {
		return nil, fmt.Errorf("create index builds counter: %w", err)
	}

	if m.indexBuildDuration, err = meter.Float64Histogram(
		MetricNameIndexBuildDuration,
		metric.WithDescription("Topic index build duration (seconds), corpus read through swap"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create index build duration histogram: %w", err)
	}

	if m.vectorsReused, err = meter.Int64Counter(
		MetricNameIndexVectorsReused,
		metric.WithDescription("Topic vectors loaded from topic_embeddings instead of re-encoded"),
	); err != nil {
		return nil, fmt.Errorf("create vectors reused counter: %w", err)
	}

	if m.invalidations, err = meter.Int64Counter(
		MetricNameIndexInvalidations,
		metric.WithDescription("Explicit topic index invalidations"),
	); err != nil {
		return nil, fmt.Errorf("create invalidations counter: %w", err)
	}

	if _, err = meter.Int64ObservableGauge(
		MetricNameIndexTopics,
		metric.WithDescription("Topics in the currently installed index (0 when not loaded)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.indexSize.Load())

			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("create index size gauge: %w", err)
	}

	if _, err = meter.Int64ObservableGauge(
		MetricNameRebuildQueueDepth,
		metric.WithDescription("Pending topic index rebuild jobs (available, retryable, scheduled)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.rebuildQueueDepth.Load())

			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("create rebuild queue depth gauge: %w", err)
	}

	if m.recommendations, err = meter.Int64Counter(
		MetricNameRecommendations,
		metric.WithDescription("Recommendation requests by outcome (served, no_history, failed)"),
	); err != nil {
		return nil, fmt.Errorf("create recommendations counter: %w", err)
	}

	if m.recommendDuration, err = meter.Float64Histogram(
		MetricNameRecommendDuration,
		metric.WithDescription("Recommendation latency (seconds)"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create recommendation duration histogram: %w", err)
	}

	if m.recommendedItems, err = meter.Int64Histogram(
		MetricNameRecommendedItems,
		metric.WithDescription("Items returned per served recommendation"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 10, 20, 50),
	); err != nil {
		return nil, fmt.Errorf("create recommended items histogram: %w", err)
	}

	if m.staleRefs, err = meter.Int64Counter(
		MetricNameStaleTopicReferences,
		metric.WithDescription("Activity events skipped because their topic is not in the index"),
	); err != nil {
		return nil, fmt.Errorf("create stale refs counter: %w", err)
	}

	if m.rebuildEnqueued, err = meter.Int64Counter(
		MetricNameIndexRebuildEnqueued,
		metric.WithDescription("Topic index rebuild jobs enqueued"),
	); err != nil {
		return nil, fmt.Errorf("create rebuild enqueued counter: %w", err)
	}

	if m.rebuildEnqueueErrs, err = meter.Int64Counter(
		MetricNameIndexRebuildEnqueueEr,
		metric.WithDescription("Topic index rebuild enqueue failures"),
	); err != nil {
		return nil, fmt.Errorf("create rebuild enqueue errors counter: %w", err)
	}

	if m.rebuildJobs, err = meter.Int64Counter(
		MetricNameIndexRebuildJobs,
		metric.WithDescription("Topic index rebuild job outcomes"),
	); err != nil {
		return nil, fmt.Errorf("create rebuild jobs counter: %w", err)
	}

	if m.activityLogged, err = meter.Int64Counter(
		MetricNameActivityEventsLogged,
		metric.WithDescription("Activity events written, by kind"),
	); err != nil {
		return nil, fmt.Errorf("create activity logged counter: %w", err)
	}

	if m.catalogRows, err = meter.Int64Counter(
		MetricNameCatalogRowsImported,
		metric.WithDescription("Catalog rows imported"),
	); err != nil {
		return nil, fmt.Errorf("create catalog rows counter: %w", err)
	}

	return m, nil
}

func (m *recommenderMetrics) RecordIndexBuild(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrOutcome, NormalizeReason(outcome, AllowedIndexBuildOutcomes)))
	m.indexBuilds.Add(ctx, 1, attrs)
	m.indexBuildDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *recommenderMetrics) RecordVectorsReused(ctx context.Context, count int) {
	m.vectorsReused.Add(ctx, int64(count))
}

func (m *recommenderMetrics) RecordIndexInvalidated(ctx context.Context) {
	m.invalidations.Add(ctx, 1)
}

func (m *recommenderMetrics) SetIndexSize(topics int) {
	m.indexSize.Store(int64(topics))
}

func (m *recommenderMetrics) SetRebuildQueueDepth(depth int) {
	m.rebuildQueueDepth.Store(int64(depth))
}

func (m *recommenderMetrics) RecordRecommendation(ctx context.Context, outcome string, duration time.Duration, items int) {
	outcome = NormalizeReason(outcome, AllowedRecommendationOutcomes)
	attrs := metric.WithAttributes(attribute.String(AttrOutcome, outcome))
	m.recommendations.Add(ctx, 1, attrs)
	m.recommendDuration.Record(ctx, duration.Seconds(), attrs)

	if outcome == "served" {
		m.recommendedItems.Record(ctx, int64(items))
	}
}

func (m *recommenderMetrics) RecordStaleTopicReferences(ctx context.Context, count int) {
	m.staleRefs.Add(ctx, int64(count))
}

func (m *recommenderMetrics) RecordRebuildEnqueued(ctx context.Context, reason string) {
	m.rebuildEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, NormalizeRebuildReason(reason))))
}

func (m *recommenderMetrics) RecordRebuildEnqueueError(ctx context.Context, reason string) {
	m.rebuildEnqueueErrs.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, NormalizeRebuildReason(reason))))
}

func (m *recommenderMetrics) RecordRebuildJob(ctx context.Context, outcome string) {
	outcome = NormalizeReason(outcome, AllowedRebuildJobOutcomes)
	m.rebuildJobs.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

func (m *recommenderMetrics) RecordActivityLogged(ctx context.Context, kind string) {
	m.activityLogged.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrKind, NormalizeActivityKind(kind))))
}

func (m *recommenderMetrics) RecordCatalogRowsImported(ctx context.Context, count int) {
	m.catalogRows.Add(ctx, int64(count))
}
