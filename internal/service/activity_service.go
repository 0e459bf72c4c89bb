package service

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
	"github.com/expertshelf/hub/internal/observability"
)

// ActivityRepository writes the activity log.
type ActivityRepository interface {
	Create(ctx context.Context, req *models.CreateActivityEventRequest) (*models.ActivityEvent, error)
}

// ActivityService records user activity events.
type ActivityService struct {
	repo    ActivityRepository
	metrics observability.RecommenderMetrics
	logger  *slog.Logger
}

// NewActivityService creates an ActivityService. metrics may be nil.
func NewActivityService(repo ActivityRepository, metrics observability.RecommenderMetrics, logger *slog.Logger) *ActivityService {
	if logger == nil {
		logger = slog.Default()
	}

	return &ActivityService{repo: repo, metrics: metrics, logger: logger}
}

// Log appends one event. Unknown kinds and non-positive ids are validation errors.
func (s *ActivityService) Log(ctx context.Context, req *models.CreateActivityEventRequest) (*models.ActivityEvent, error) {
	if req.UserID <= 0 {
		return nil, apperrors.NewValidationError("user_id", "user_id must be positive")
	}

	if _, err := models.ParseActivityKind(req.Kind); err != nil {
		return nil, apperrors.NewValidationError("kind", err.Error())
	}

	if req.TopicID != nil && *req.TopicID <= 0 {
		return nil, apperrors.NewValidationError("topic_id", "topic_id must be positive")
	}

	event, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create activity event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordActivityLogged(ctx, req.Kind)
	}

	return event, nil
}
