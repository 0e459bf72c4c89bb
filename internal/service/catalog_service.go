package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
	"github.com/expertshelf/hub/internal/observability"
)

// ErrRebuildNotEnqueued is returned alongside a committed import when the follow-up
// index rebuild job could not be enqueued.
var ErrRebuildNotEnqueued = errors.New("topic index rebuild not enqueued")

// CatalogRepository writes the topic catalog.
type CatalogRepository interface {
	ImportCatalog(ctx context.Context, rows []models.CatalogRow) (*models.ImportSummary, error)
	DeleteTopic(ctx context.Context, id int64) error
}

// CatalogService imports and deletes topics and keeps the topic index in step.
type CatalogService struct {
	repo     CatalogRepository
	inserter JobInserter
	cache    CacheInvalidator
	metrics  observability.RecommenderMetrics
	logger   *slog.Logger
}

// CatalogServiceParams configures CatalogService. Inserter, Cache and Metrics may be nil.
type CatalogServiceParams struct {
	Repo     CatalogRepository
	Inserter JobInserter
	Cache    CacheInvalidator
	Metrics  observability.RecommenderMetrics
	Logger   *slog.Logger
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(p CatalogServiceParams) *CatalogService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CatalogService{
		repo:     p.Repo,
		inserter: p.Inserter,
		cache:    p.Cache,
		metrics:  p.Metrics,
		logger:   logger,
	}
}

// Import upserts topics and adds content items in one transaction, then requests an index rebuild.
// When the import commits but the rebuild cannot be enqueued, the summary is returned together
// with an error wrapping ErrRebuildNotEnqueued.
func (s *CatalogService) Import(ctx context.Context, rows []models.CatalogRow) (*models.ImportSummary, error) {
	if len(rows) == 0 {
		return nil, apperrors.NewValidationError("rows", "catalog has no rows")
	}

	summary, err := s.repo.ImportCatalog(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("import catalog: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordCatalogRowsImported(ctx, len(rows))
	}

	s.logger.Info("catalog imported",
		"rows", len(rows),
		"topics_created", summary.TopicsCreated,
		"topics_reused", summary.TopicsReused,
		"items_created", summary.ItemsCreated,
	)

	if err := s.requestRebuild(ctx, RebuildReasonCatalogImport); err != nil {
		return summary, err
	}

	return summary, nil
}

// DeleteTopic removes a topic and its content items. A failed rebuild enqueue is only
// logged: the local index is already invalidated and rebuilds on next use.
func (s *CatalogService) DeleteTopic(ctx context.Context, id int64) error {
	if err := s.repo.DeleteTopic(ctx, id); err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}

	s.logger.Info("topic deleted", "topic_id", id)

	if err := s.requestRebuild(ctx, RebuildReasonTopicDeleted); err != nil {
		s.logger.Warn("topic deleted without rebuild job", "topic_id", id, "error", err)
	}

	return nil
}

// RequestRebuild invalidates the local index and enqueues a rebuild job.
func (s *CatalogService) RequestRebuild(ctx context.Context, reason string) error {
	return s.requestRebuild(ctx, reason)
}

func (s *CatalogService) requestRebuild(ctx context.Context, reason string) error {
	if s.cache != nil {
		s.cache.Invalidate()
	}

	if s.inserter == nil {
		return nil
	}

	jobID, err := EnqueueIndexRebuild(ctx, s.inserter, reason)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRebuildEnqueueError(ctx, reason)
		}

		return fmt.Errorf("%w: %w", ErrRebuildNotEnqueued, err)
	}

	if s.metrics != nil {
		s.metrics.RecordRebuildEnqueued(ctx, reason)
	}

	s.logger.Info("topic index rebuild enqueued", "job_id", jobID, "reason", reason)

	return nil
}
