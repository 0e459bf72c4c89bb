package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river/rivertype"

	"github.com/expertshelf/hub/internal/observability"
	"github.com/expertshelf/hub/internal/service"
)

const queueDepthInterval = 15 * time.Second

// RowQuerier runs a single-row query (pgxpool.Pool).
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PollRebuildQueueDepth updates the rebuild queue depth gauge until ctx is done.
// Depth counts available, retryable and scheduled topic index rebuild jobs.
func PollRebuildQueueDepth(ctx context.Context, db RowQuerier, metrics observability.RecommenderMetrics) {
	if metrics == nil {
		return
	}

	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		updateRebuildQueueDepth(ctx, db, metrics)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func updateRebuildQueueDepth(ctx context.Context, db RowQuerier, metrics observability.RecommenderMetrics) {
	var depth int

	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM river_job WHERE kind = $1 AND state IN ($2, $3, $4)`,
		service.IndexRebuildArgs{}.Kind(),
		rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
	).Scan(&depth)
	if err != nil {
		if ctx.Err() == nil {
			slog.WarnContext(ctx, "rebuild queue depth poll failed", "error", err)
		}

		return
	}

	metrics.SetRebuildQueueDepth(depth)
}
