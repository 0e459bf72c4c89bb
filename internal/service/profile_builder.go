package service

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
	"github.com/expertshelf/hub/internal/observability"
	vec "github.com/expertshelf/hub/pkg/embeddings"
)

const defaultHistoryWindow = 12

// ActivityReader reads the activity log for the recommender.
type ActivityReader interface {
	// RecentTopicEvents returns up to limit viewed-content events with a topic, newest first.
	RecentTopicEvents(ctx context.Context, userID int64, limit int) ([]models.TopicEvent, error)
	// InteractedTopicIDs returns every topic the user has any event for.
	InteractedTopicIDs(ctx context.Context, userID int64) ([]int64, error)
}

// IndexLoader yields a loaded topic index.
type IndexLoader interface {
	EnsureLoaded(ctx context.Context) (*TopicIndex, error)
}

// Profile is a user's mean topic vector and the index it was resolved against.
type Profile struct {
	Vector []float32
	Index  *TopicIndex
	// TopicIDs are the resolved topics, newest first, with repeats.
	TopicIDs []int64
}

// ProfileBuilder turns recent activity into a profile vector.
type ProfileBuilder struct {
	index    IndexLoader
	activity ActivityReader
	window   int
	metrics  observability.RecommenderMetrics
	logger   *slog.Logger
}

// NewProfileBuilder creates a ProfileBuilder. window <= 0 uses 12 events.
func NewProfileBuilder(
	index IndexLoader, activity ActivityReader, window int, metrics observability.RecommenderMetrics, logger *slog.Logger,
) *ProfileBuilder {
	if window <= 0 {
		window = defaultHistoryWindow
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ProfileBuilder{index: index, activity: activity, window: window, metrics: metrics, logger: logger}
}

// BuildProfile returns the mean vector of the user's most recent topic views.
// It returns (nil, nil) when no recent event resolves to an indexed topic.
func (b *ProfileBuilder) BuildProfile(ctx context.Context, userID int64) (*Profile, error) {
	idx, err := b.index.EnsureLoaded(ctx)
	if err != nil {
		return nil, fmt.Errorf("load topic index: %w", err)
	}

	events, err := b.activity.RecentTopicEvents(ctx, userID, b.window)
	if err != nil {
		return nil, apperrors.NewDataUnavailableError("activity log", err)
	}

	vectors := make([][]float32, 0, len(events))
	topicIDs := make([]int64, 0, len(events))
	stale := 0

	for _, e := range events {
		v, ok := idx.Vector(e.TopicID)
		if !ok {
			stale++

			b.logger.Debug("skipping activity for unindexed topic", "user_id", userID, "topic_id", e.TopicID)

			continue
		}

		vectors = append(vectors, v)
		topicIDs = append(topicIDs, e.TopicID)
	}

	if stale > 0 && b.metrics != nil {
		b.metrics.RecordStaleTopicReferences(ctx, stale)
	}

	if len(vectors) == 0 {
		//nolint:nilnil // no profile is not an error
		return nil, nil
	}

	mean, err := vec.Mean(vectors)
	if err != nil {
		return nil, fmt.Errorf("average topic vectors: %w", err)
	}

	return &Profile{Vector: mean, Index: idx, TopicIDs: topicIDs}, nil
}
