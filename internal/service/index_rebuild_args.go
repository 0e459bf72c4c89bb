package service

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const (
	topicIndexRebuildKind = "topic_index_rebuild"
	// IndexQueueName is the River queue used for topic index rebuild jobs.
	IndexQueueName = "topic_index"
)

// Rebuild reasons, recorded on the job and in metrics.
const (
	RebuildReasonCatalogImport = "catalog_import"
	RebuildReasonTopicDeleted  = "topic_deleted"
	RebuildReasonAdmin         = "admin"
	RebuildReasonCLI           = "cli"
)

// JobInserter inserts River jobs (e.g. river.Client). Only Insert is used.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// IndexRebuildArgs asks the API process to drop and rebuild its topic index.
// Jobs are not deduplicated: a rebuild requested while another one is running
// must still run so it sees the newer catalog.
type IndexRebuildArgs struct {
	Reason string `json:"reason"`
}

// Kind returns the River job kind.
func (IndexRebuildArgs) Kind() string { return topicIndexRebuildKind }

// InsertOpts routes rebuild jobs to their own queue.
func (IndexRebuildArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: IndexQueueName}
}

var (
	_ river.JobArgs               = IndexRebuildArgs{}
	_ river.JobArgsWithInsertOpts = IndexRebuildArgs{}
)

// EnqueueIndexRebuild inserts one rebuild job and returns its id.
func EnqueueIndexRebuild(ctx context.Context, inserter JobInserter, reason string) (int64, error) {
	res, err := inserter.Insert(ctx, IndexRebuildArgs{Reason: reason}, nil)
	if err != nil {
		return 0, fmt.Errorf("insert topic index rebuild job: %w", err)
	}

	return res.Job.ID, nil
}
