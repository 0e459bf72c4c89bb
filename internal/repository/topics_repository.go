package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
)

// TopicsRepository handles data access for topics and their content items.
type TopicsRepository struct {
	db *pgxpool.Pool
}

// NewTopicsRepository creates a new topics repository.
func NewTopicsRepository(db *pgxpool.Pool) *TopicsRepository {
	return &TopicsRepository{db: db}
}

// ListTopics returns the whole topic corpus ordered by id.
func (r *TopicsRepository) ListTopics(ctx context.Context) ([]models.Topic, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, broad_label, specific_label, created_at
		FROM topics
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	topics := []models.Topic{}

	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.BroadLabel, &t.SpecificLabel, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}

		topics = append(topics, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topics: %w", err)
	}

	return topics, nil
}

// ListContentItems returns the content items of the given topics, grouped by topic and ordered by id.
func (r *TopicsRepository) ListContentItems(ctx context.Context, topicIDs []int64) ([]models.ContentItem, error) {
	if len(topicIDs) == 0 {
		return []models.ContentItem{}, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, topic_id, title, contributor_name, contributor_role, description
		FROM content_items
		WHERE topic_id = ANY($1)
		ORDER BY topic_id, id
	`, topicIDs)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	items := []models.ContentItem{}

	for rows.Next() {
		var it models.ContentItem
		if err := rows.Scan(
			&it.ID, &it.TopicID, &it.Title, &it.ContributorName, &it.ContributorRole, &it.Description,
		); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}

		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating content items: %w", err)
	}

	return items, nil
}

type topicKey struct {
	broad    string
	specific string
}

// ImportCatalog upserts topics by (broad_label, specific_label) and inserts their content items
// in one transaction. Items already present under the same topic, contributor and title are skipped.
func (r *TopicsRepository) ImportCatalog(ctx context.Context, rows []models.CatalogRow) (*models.ImportSummary, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	summary := &models.ImportSummary{}
	topicIDs := make(map[topicKey]int64)

	for _, row := range rows {
		key := topicKey{broad: row.BroadLabel, specific: row.SpecificLabel}
		if _, ok := topicIDs[key]; ok {
			continue
		}

		var (
			id       int64
			inserted bool
		)

		// xmax = 0 only for a freshly inserted tuple.
		err := tx.QueryRow(ctx, `
			INSERT INTO topics (broad_label, specific_label)
			VALUES ($1, $2)
			ON CONFLICT (broad_label, specific_label)
			DO UPDATE SET broad_label = EXCLUDED.broad_label
			RETURNING id, (xmax = 0)
		`, row.BroadLabel, row.SpecificLabel).Scan(&id, &inserted)
		if err != nil {
			return nil, fmt.Errorf("upsert topic %q/%q: %w", row.BroadLabel, row.SpecificLabel, err)
		}

		topicIDs[key] = id

		if inserted {
			summary.TopicsCreated++
		} else {
			summary.TopicsReused++
		}
	}

	batch := &pgx.Batch{}

	for _, row := range rows {
		batch.Queue(`
			INSERT INTO content_items (topic_id, title, contributor_name, contributor_role, description)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (topic_id, contributor_name, title) DO NOTHING
		`, topicIDs[topicKey{broad: row.BroadLabel, specific: row.SpecificLabel}],
			row.Title, row.ContributorName, row.ContributorRole, row.Description)
	}

	results := tx.SendBatch(ctx, batch)

	for i := range rows {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()

			return nil, fmt.Errorf("insert content item (row %d): %w", i+1, err)
		}

		if tag.RowsAffected() == 1 {
			summary.ItemsCreated++
		} else {
			summary.ItemsSkipped++
		}
	}

	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("close import batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}

	return summary, nil
}

// GetTopic returns one topic by id.
func (r *TopicsRepository) GetTopic(ctx context.Context, id int64) (*models.Topic, error) {
	var t models.Topic

	err := r.db.QueryRow(ctx, `
		SELECT id, broad_label, specific_label, created_at
		FROM topics
		WHERE id = $1
	`, id).Scan(&t.ID, &t.BroadLabel, &t.SpecificLabel, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("topic", "topic not found")
		}

		return nil, fmt.Errorf("get topic: %w", err)
	}

	return &t, nil
}

// DeleteTopic removes a topic. Its content items and stored embeddings cascade; activity
// events keep their row with topic_id set to NULL.
func (r *TopicsRepository) DeleteTopic(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("topic", "topic not found")
	}

	return nil
}
