package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/expertshelf/hub/internal/models"
)

// EmbeddingsRepository handles data access for the topic_embeddings table.
// Requires pgvector types registered on the pool (see database.RegisterVectorTypes).
type EmbeddingsRepository struct {
	db *pgxpool.Pool
}

// NewEmbeddingsRepository creates a new embeddings repository.
func NewEmbeddingsRepository(db *pgxpool.Pool) *EmbeddingsRepository {
	return &EmbeddingsRepository{db: db}
}

// ListTopicEmbeddings returns every stored topic vector for model.
func (r *EmbeddingsRepository) ListTopicEmbeddings(ctx context.Context, model string) ([]models.TopicEmbedding, error) {
	rows, err := r.db.Query(ctx, `
		SELECT topic_id, model, label, embedding, updated_at
		FROM topic_embeddings
		WHERE model = $1
	`, model)
	if err != nil {
		return nil, fmt.Errorf("list topic embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.TopicEmbedding

	for rows.Next() {
		var (
			e models.TopicEmbedding
			v pgvector.Vector
		)

		if err := rows.Scan(&e.TopicID, &e.Model, &e.Label, &v, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan topic embedding: %w", err)
		}

		e.Embedding = v.Slice()
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topic embeddings: %w", err)
	}

	return out, nil
}

// UpsertTopicEmbeddings stores vectors keyed by (topic_id, model). Rows whose topic was
// deleted in the meantime are skipped.
func (r *EmbeddingsRepository) UpsertTopicEmbeddings(ctx context.Context, rows []models.TopicEmbedding) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	for _, e := range rows {
		batch.Queue(`
			INSERT INTO topic_embeddings (topic_id, model, label, embedding, updated_at)
			SELECT $1, $2, $3, $4, now()
			WHERE EXISTS (SELECT 1 FROM topics WHERE id = $1)
			ON CONFLICT (topic_id, model)
			DO UPDATE SET label = EXCLUDED.label, embedding = EXCLUDED.embedding, updated_at = now()
		`, e.TopicID, e.Model, e.Label, pgvector.NewVector(e.Embedding))
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert topic embeddings: %w", err)
	}

	return nil
}
