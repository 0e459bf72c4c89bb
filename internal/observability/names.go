// Package observability provides OpenTelemetry metrics and tracing for the hub API.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameIndexBuilds           = "hub_topic_index_builds_total"
	MetricNameIndexBuildDuration    = "hub_topic_index_build_duration_seconds"
	MetricNameIndexTopics           = "hub_topic_index_topics"
	MetricNameIndexVectorsReused    = "hub_topic_index_vectors_reused_total"
	MetricNameIndexInvalidations    = "hub_topic_index_invalidations_total"
	MetricNameRebuildQueueDepth     = "hub_topic_index_rebuild_queue_depth"
	MetricNameRecommendations       = "hub_recommendations_total"
	MetricNameRecommendDuration     = "hub_recommendation_duration_seconds"
	MetricNameRecommendedItems      = "hub_recommendation_items"
	MetricNameStaleTopicReferences  = "hub_recommendation_stale_topic_refs_total"
	MetricNameEncodeBatches         = "hub_embedding_encode_batches_total"
	MetricNameEncodeBatchDuration   = "hub_embedding_encode_batch_duration_seconds"
	MetricNameEncodedTexts          = "hub_embedding_encoded_texts_total"
	MetricNameIndexRebuildJobs      = "hub_topic_index_rebuild_jobs_total"
	MetricNameCacheHits             = "hub_cache_hits_total"
	MetricNameCacheMisses           = "hub_cache_misses_total"
	MetricNameRequestBodyTooLarge   = "hub_api_request_body_too_large_total"
	MetricNameActivityEventsLogged  = "hub_activity_events_logged_total"
	MetricNameCatalogRowsImported   = "hub_catalog_rows_imported_total"
	MetricNameIndexRebuildEnqueued  = "hub_topic_index_rebuild_enqueued_total"
	MetricNameIndexRebuildEnqueueEr = "hub_topic_index_rebuild_enqueue_errors_total"
)

// Attribute keys.
const (
	AttrOutcome = "outcome"
	AttrReason  = "reason"
	AttrStatus  = "status"
	AttrKind    = "kind"
	AttrCache   = "cache"
)

// AllowedIndexBuildOutcomes for hub_topic_index_builds_total and the build duration histogram.
var AllowedIndexBuildOutcomes = map[string]bool{
	"success":          true,
	"corpus_failed":    true,
	"encode_failed":    true,
	"superseded":       true,
	"timeout":          true,
	"index_failed":     true,
	"persist_degraded": true,
}

// AllowedRecommendationOutcomes for hub_recommendations_total.
var AllowedRecommendationOutcomes = map[string]bool{
	"served":     true,
	"no_history": true,
	"failed":     true,
}

// AllowedEncodeStatuses for hub_embedding_encode_batches_total.
var AllowedEncodeStatuses = map[string]bool{
	"success":   true,
	"failed":    true,
	"cancelled": true,
}

// AllowedRebuildJobOutcomes for hub_topic_index_rebuild_jobs_total.
var AllowedRebuildJobOutcomes = map[string]bool{
	"success":      true,
	"retry":        true,
	"failed_final": true,
}

// AllowedCacheNames for cache hit/miss counters.
var AllowedCacheNames = map[string]bool{
	"label_embedding": true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, AllowedCacheNames)
}

// AllowedRebuildReasons for rebuild enqueue counters.
var AllowedRebuildReasons = map[string]bool{
	"catalog_import": true,
	"topic_deleted":  true,
	"admin":          true,
	"cli":            true,
}

// AllowedActivityKinds for hub_activity_events_logged_total.
var AllowedActivityKinds = map[string]bool{
	"start_bot":                true,
	"viewed_expert_content":    true,
	"requested_recommendation": true,
	"subscribe":                true,
	"unsubscribe":              true,
	"list_subscriptions":       true,
}

// NormalizeRebuildReason returns reason if it is a known rebuild trigger, otherwise "other".
func NormalizeRebuildReason(reason string) string {
	return NormalizeReason(reason, AllowedRebuildReasons)
}

// NormalizeActivityKind returns kind if it is a known activity kind, otherwise "other".
func NormalizeActivityKind(kind string) string {
	return NormalizeReason(kind, AllowedActivityKinds)
}
