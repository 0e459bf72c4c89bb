// import-catalog loads a topic catalog CSV into the database and enqueues a topic index rebuild.
// Re-importing the same file is safe: existing topics are reused and duplicate items skipped.
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

	"github.com/expertshelf/hub/internal/repository"
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
	file := flag.String("file", "", "path to the catalog CSV (required)")
	noRebuild := flag.Bool("no-rebuild", false, "skip enqueueing the topic index rebuild")
	flag.Parse()

	if *file == "" {
		slog.Error("-file is required")
		flag.Usage()

		return exitFailure
	}

	// Load .env for consistency with the main API server (godotenv.Load() there).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")

		return exitFailure
	}

	f, err := os.Open(*file)
	if err != nil {
		slog.Error("Failed to open catalog", "file", *file, "error", err)

		return exitFailure
	}
	defer func() { _ = f.Close() }()

	rows, err := readCatalog(f)
	if err != nil {
		slog.Error("Invalid catalog", "file", *file, "error", err)

		return exitFailure
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	params := service.CatalogServiceParams{Repo: repository.NewTopicsRepository(db)}

	if !*noRebuild {
		// Insert-only client: no queues or workers.
		riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
		if err != nil {
			slog.Error("Failed to create River client", "error", err)

			return exitFailure
		}

		params.Inserter = riverClient
	}

	summary, err := service.NewCatalogService(params).Import(ctx, rows)

	switch {
	case errors.Is(err, service.ErrRebuildNotEnqueued):
		slog.Warn("Catalog imported but rebuild was not enqueued; run rebuild-index", "error", err)
	case err != nil:
		slog.Error("Import failed", "error", err)

		return exitFailure
	}

	fmt.Printf("Imported %d rows: %d topics created, %d reused, %d items created, %d skipped.\n",
		len(rows), summary.TopicsCreated, summary.TopicsReused, summary.ItemsCreated, summary.ItemsSkipped)

	return exitSuccess
}
