// Package workers provides River job workers for the hub API process.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/expertshelf/hub/internal/observability"
	"github.com/expertshelf/hub/internal/service"
)

const defaultRebuildTimeout = 5 * time.Minute

// topicIndex is the subset of service.EmbeddingCache the worker needs.
type topicIndex interface {
	Invalidate()
	EnsureLoaded(ctx context.Context) (*service.TopicIndex, error)
}

// IndexRebuildWorker drops the in-process topic index and builds a fresh one.
type IndexRebuildWorker struct {
	river.WorkerDefaults[service.IndexRebuildArgs]

	index   topicIndex
	timeout time.Duration
	metrics observability.RecommenderMetrics
}

// NewIndexRebuildWorker creates the worker. timeout bounds one job; <= 0 uses 5 minutes.
// metrics may be nil when metrics are disabled.
func NewIndexRebuildWorker(index topicIndex, timeout time.Duration, metrics observability.RecommenderMetrics) *IndexRebuildWorker {
	if timeout <= 0 {
		timeout = defaultRebuildTimeout
	}

	return &IndexRebuildWorker{index: index, timeout: timeout, metrics: metrics}
}

// Timeout limits how long a single rebuild job can run.
func (w *IndexRebuildWorker) Timeout(*river.Job[service.IndexRebuildArgs]) time.Duration {
	return w.timeout
}

// Work invalidates the index and waits for the rebuild. Failures are retried until the last attempt.
func (w *IndexRebuildWorker) Work(ctx context.Context, job *river.Job[service.IndexRebuildArgs]) error {
	start := time.Now()

	w.index.Invalidate()

	idx, err := w.index.EnsureLoaded(ctx)
	if err != nil {
		isLastAttempt := job.Attempt >= job.MaxAttempts

		if isLastAttempt {
			w.record(ctx, "failed_final")
			slog.Error("topic index rebuild failed (final attempt)",
				"job_id", job.ID,
				"reason", job.Args.Reason,
				"error", err,
			)

			return nil
		}

		w.record(ctx, "retry")

		return fmt.Errorf("rebuild topic index: %w", err)
	}

	w.record(ctx, "success")
	slog.Info("topic index rebuilt",
		"job_id", job.ID,
		"reason", job.Args.Reason,
		"topic_count", idx.Len(),
		"duration", time.Since(start),
	)

	return nil
}

func (w *IndexRebuildWorker) record(ctx context.Context, outcome string) {
	if w.metrics != nil {
		w.metrics.RecordRebuildJob(ctx, outcome)
	}
}
