package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
	"github.com/expertshelf/hub/internal/observability"
)

const (
	defaultCandidateLimit = 10
	defaultTopK           = 5
	defaultMaxTopK        = 50
)

// ProfileSource builds user profiles.
type ProfileSource interface {
	BuildProfile(ctx context.Context, userID int64) (*Profile, error)
}

// ContentReader reads content items for a set of topics.
type ContentReader interface {
	ListContentItems(ctx context.Context, topicIDs []int64) ([]models.ContentItem, error)
}

// ActivityRecorder appends activity events.
type ActivityRecorder interface {
	Log(ctx context.Context, req *models.CreateActivityEventRequest) (*models.ActivityEvent, error)
}

// CacheInvalidator drops the topic index.
type CacheInvalidator interface {
	Invalidate()
}

// RecommendationService samples content from the topics most similar to a user's recent views.
type RecommendationService struct {
	profiles       ProfileSource
	activity       ActivityReader
	content        ContentReader
	recorder       ActivityRecorder
	cache          CacheInvalidator
	sampler        *Sampler
	candidateLimit int
	defaultTopK    int
	maxTopK        int
	metrics        observability.RecommenderMetrics
	logger         *slog.Logger
}

// RecommendationServiceParams configures RecommendationService.
// Recorder, Cache and Metrics may be nil; a nil Sampler is clock-seeded.
type RecommendationServiceParams struct {
	Profiles       ProfileSource
	Activity       ActivityReader
	Content        ContentReader
	Recorder       ActivityRecorder
	Cache          CacheInvalidator
	Sampler        *Sampler
	CandidateLimit int
	DefaultTopK    int
	MaxTopK        int
	Metrics        observability.RecommenderMetrics
	Logger         *slog.Logger
}

// NewRecommendationService creates a RecommendationService.
func NewRecommendationService(p RecommendationServiceParams) *RecommendationService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sampler := p.Sampler
	if sampler == nil {
		sampler = NewSampler(0)
	}

	s := &RecommendationService{
		profiles:       p.Profiles,
		activity:       p.Activity,
		content:        p.Content,
		recorder:       p.Recorder,
		cache:          p.Cache,
		sampler:        sampler,
		candidateLimit: p.CandidateLimit,
		defaultTopK:    p.DefaultTopK,
		maxTopK:        p.MaxTopK,
		metrics:        p.Metrics,
		logger:         logger,
	}

	if s.candidateLimit <= 0 {
		s.candidateLimit = defaultCandidateLimit
	}

	if s.defaultTopK <= 0 {
		s.defaultTopK = defaultTopK
	}

	if s.maxTopK <= 0 {
		s.maxTopK = defaultMaxTopK
	}

	return s
}

// InvalidateCache drops the topic index so the next request rebuilds it.
func (s *RecommendationService) InvalidateCache() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}

// Recommend returns up to topK content items, grouped by topic, drawn from the topics
// closest to the user's recent views that the user has not interacted with yet.
// topK <= 0 uses the default; topK above the configured maximum is a validation error.
// An empty result means the user has no usable history. Other failures wrap
// apperrors.ErrRecommendationUnavailable.
func (s *RecommendationService) Recommend(ctx context.Context, userID int64, topK int) ([]models.RecommendationGroup, error) {
	if topK <= 0 {
		topK = s.defaultTopK
	}

	if topK > s.maxTopK {
		return nil, apperrors.NewValidationError("topK", fmt.Sprintf("topK must be at most %d", s.maxTopK))
	}

	ctx, span := observability.Tracer().Start(ctx, "RecommendationService.Recommend",
		trace.WithAttributes(attribute.Int64("user_id", userID), attribute.Int("top_k", topK)))
	defer span.End()

	started := time.Now()
	s.recordRequest(ctx, userID)

	groups, items, err := s.recommend(ctx, userID, topK)

	outcome := "served"

	switch {
	case err != nil:
		outcome = "failed"

		span.RecordError(err)
		span.SetStatus(codes.Error, "recommendation unavailable")
		s.logger.Error("recommendation failed", "user_id", userID, "error", err)
	case groups == nil:
		outcome = "no_history"
		groups = []models.RecommendationGroup{}
	}

	if s.metrics != nil {
		s.metrics.RecordRecommendation(ctx, outcome, time.Since(started), items)
	}

	if err != nil {
		return nil, apperrors.NewRecommendationUnavailableError(err)
	}

	span.SetAttributes(attribute.Int("items", items), attribute.String("outcome", outcome))

	return groups, nil
}

// recommend returns nil groups when the user has no profile.
func (s *RecommendationService) recommend(
	ctx context.Context, userID int64, topK int,
) ([]models.RecommendationGroup, int, error) {
	profile, err := s.profiles.BuildProfile(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	if profile == nil {
		return nil, 0, nil
	}

	interacted, err := s.activity.InteractedTopicIDs(ctx, userID)
	if err != nil {
		return nil, 0, apperrors.NewDataUnavailableError("activity log", err)
	}

	exclude := make(map[int64]struct{}, len(interacted))
	for _, id := range interacted {
		exclude[id] = struct{}{}
	}

	ranked := RankTopics(profile.Index, profile.Vector, exclude)
	if len(ranked) > s.candidateLimit {
		ranked = ranked[:s.candidateLimit]
	}

	if len(ranked) == 0 {
		return []models.RecommendationGroup{}, 0, nil
	}

	candidateIDs := make([]int64, len(ranked))
	for i, r := range ranked {
		candidateIDs[i] = r.TopicID
	}

	pool, err := s.content.ListContentItems(ctx, candidateIDs)
	if err != nil {
		return nil, 0, apperrors.NewDataUnavailableError("topic corpus", err)
	}

	picks := s.sampler.Pick(len(pool), topK)

	return groupByCandidate(profile.Index, candidateIDs, pool, picks), len(picks), nil
}

// groupByCandidate regroups the picked items by topic. Groups follow candidate order,
// items inside a group follow pick order, and topics with no picked item are omitted.
func groupByCandidate(
	idx *TopicIndex, candidateIDs []int64, pool []models.ContentItem, picks []int,
) []models.RecommendationGroup {
	byTopic := make(map[int64][]models.RecommendedItem, len(candidateIDs))

	for _, p := range picks {
		item := pool[p]
		byTopic[item.TopicID] = append(byTopic[item.TopicID], models.RecommendedItem{
			ContributorName: item.ContributorName,
			ContributorRole: item.ContributorRole,
			Title:           item.Title,
			Description:     item.Description,
		})
	}

	groups := make([]models.RecommendationGroup, 0, len(byTopic))

	for _, id := range candidateIDs {
		items := byTopic[id]
		if len(items) == 0 {
			continue
		}

		topic, _ := idx.Topic(id)
		groups = append(groups, models.RecommendationGroup{
			TopicID:       id,
			BroadLabel:    topic.BroadLabel,
			SpecificLabel: topic.SpecificLabel,
			Items:         items,
		})
	}

	return groups
}

func (s *RecommendationService) recordRequest(ctx context.Context, userID int64) {
	if s.recorder == nil {
		return
	}

	_, err := s.recorder.Log(ctx, &models.CreateActivityEventRequest{
		UserID: userID,
		Kind:   string(models.ActivityRequestedRecommendation),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("record recommendation request failed", "user_id", userID, "error", err)
	}
}
