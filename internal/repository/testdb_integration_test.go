//go:build integration

package repository

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/expertshelf/hub/pkg/database"
)

const pgvectorImage = "pgvector/pgvector:pg17"

func skipIfNoDocker(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// newTestPool starts a pgvector Postgres with the schema applied and returns a pool
// with vector types registered. The container is removed when the test ends.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	skipIfNoDocker(t)

	ctx := context.Background()

	schema, err := filepath.Abs(filepath.Join("..", "..", "migrations", "001_initial_schema.sql"))
	require.NoError(t, err)

	ctr, err := postgres.Run(ctx, pgvectorImage,
		postgres.WithDatabase("expertshelf"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.WithInitScripts(schema),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.NewPostgresPool(ctx, dsn, database.WithVectorTypes())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}
