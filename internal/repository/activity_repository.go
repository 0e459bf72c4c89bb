package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
)

const pgForeignKeyViolation = "23503"

// ActivityRepository handles data access for the activity log.
type ActivityRepository struct {
	db *pgxpool.Pool
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create appends one event. A topic_id that does not exist yields a NotFoundError.
func (r *ActivityRepository) Create(
	ctx context.Context, req *models.CreateActivityEventRequest,
) (*models.ActivityEvent, error) {
	var ev models.ActivityEvent

	err := r.db.QueryRow(ctx, `
		INSERT INTO activity_events (user_id, topic_id, kind)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, topic_id, kind, created_at
	`, req.UserID, req.TopicID, req.Kind).Scan(&ev.ID, &ev.UserID, &ev.TopicID, &ev.Kind, &ev.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperrors.NewNotFoundError("topic", "topic not found")
		}

		return nil, fmt.Errorf("create activity event: %w", err)
	}

	return &ev, nil
}

// RecentTopicEvents returns the user's latest viewed-content events that still carry a topic,
// newest first, at most limit.
func (r *ActivityRepository) RecentTopicEvents(
	ctx context.Context, userID int64, limit int,
) ([]models.TopicEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT topic_id, created_at
		FROM activity_events
		WHERE user_id = $1 AND kind = $2 AND topic_id IS NOT NULL
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, models.ActivityViewedExpertContent, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent topic events: %w", err)
	}
	defer rows.Close()

	events := []models.TopicEvent{}

	for rows.Next() {
		var ev models.TopicEvent
		if err := rows.Scan(&ev.TopicID, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan topic event: %w", err)
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topic events: %w", err)
	}

	return events, nil
}

// InteractedTopicIDs returns every topic the user has an event of any kind for.
func (r *ActivityRepository) InteractedTopicIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT topic_id
		FROM activity_events
		WHERE user_id = $1 AND topic_id IS NOT NULL
		ORDER BY topic_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list interacted topics: %w", err)
	}
	defer rows.Close()

	ids := []int64{}

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan topic id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating interacted topics: %w", err)
	}

	return ids, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
