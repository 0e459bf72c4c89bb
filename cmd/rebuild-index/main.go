// rebuild-index enqueues a topic_index_rebuild River job. Run it after editing the topic
// catalog out of band; the API workers invalidate and rebuild their in-memory index.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/expertshelf/hub/internal/service"
	"github.com/expertshelf/hub/pkg/database"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	reason := flag.String("reason", service.RebuildReasonCLI, "reason recorded on the job and in metrics")
	flag.Parse()

	// Load .env for consistency with the main API server (godotenv.Load() there).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")

		return exitFailure
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	// Insert-only client: no queues or workers.
	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)

		return exitFailure
	}

	jobID, err := service.EnqueueIndexRebuild(ctx, riverClient, *reason)
	if err != nil {
		slog.Error("Enqueue failed", "error", err)

		return exitFailure
	}

	slog.Info("Rebuild enqueued", "job_id", jobID, "reason", *reason)

	fmt.Printf("Enqueued topic index rebuild job %d.\n", jobID)

	return exitSuccess
}
