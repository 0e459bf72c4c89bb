package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/mock"

	"github.com/expertshelf/hub/internal/models"
)

// lookupEncoder returns fixed vectors per text and counts calls.
// When gate is set, Embed signals entered and blocks until gate is closed or ctx ends.
type lookupEncoder struct {
	vectors map[string][]float32
	err     error
	gate    chan struct{}
	entered chan struct{}

	calls atomic.Int32
	mu    sync.Mutex
	seen  [][]string
}

func (e *lookupEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)

	e.mu.Lock()
	e.seen = append(e.seen, append([]string(nil), texts...))
	e.mu.Unlock()

	if e.entered != nil {
		select {
		case e.entered <- struct{}{}:
		default:
		}
	}

	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if e.err != nil {
		return nil, e.err
	}

	out := make([][]float32, len(texts))

	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}

		out[i] = v
	}

	return out, nil
}

func (e *lookupEncoder) batches() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([][]string(nil), e.seen...)
}

type fakeCorpus struct {
	mu     sync.Mutex
	topics []models.Topic
	err    error
	calls  atomic.Int32
}

func (f *fakeCorpus) ListTopics(context.Context) ([]models.Topic, error) {
	f.calls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	return append([]models.Topic(nil), f.topics...), nil
}

func (f *fakeCorpus) set(topics []models.Topic, err error) {
	f.mu.Lock()
	f.topics = topics
	f.err = err
	f.mu.Unlock()
}

type fakeVectorStore struct {
	rows      []models.TopicEmbedding
	listErr   error
	upsertErr error
	upserted  []models.TopicEmbedding
}

func (f *fakeVectorStore) ListTopicEmbeddings(_ context.Context, model string) ([]models.TopicEmbedding, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []models.TopicEmbedding

	for _, r := range f.rows {
		if r.Model == model {
			out = append(out, r)
		}
	}

	return out, nil
}

func (f *fakeVectorStore) UpsertTopicEmbeddings(_ context.Context, rows []models.TopicEmbedding) error {
	f.upserted = append(f.upserted, rows...)

	return f.upsertErr
}

type fakeActivity struct {
	recentFunc     func(ctx context.Context, userID int64, limit int) ([]models.TopicEvent, error)
	interactedFunc func(ctx context.Context, userID int64) ([]int64, error)
}

func (f *fakeActivity) RecentTopicEvents(ctx context.Context, userID int64, limit int) ([]models.TopicEvent, error) {
	if f.recentFunc != nil {
		return f.recentFunc(ctx, userID, limit)
	}

	return nil, nil
}

func (f *fakeActivity) InteractedTopicIDs(ctx context.Context, userID int64) ([]int64, error) {
	if f.interactedFunc != nil {
		return f.interactedFunc(ctx, userID)
	}

	return nil, nil
}

type fakeContent struct {
	listFunc func(ctx context.Context, topicIDs []int64) ([]models.ContentItem, error)
}

func (f *fakeContent) ListContentItems(ctx context.Context, topicIDs []int64) ([]models.ContentItem, error) {
	if f.listFunc != nil {
		return f.listFunc(ctx, topicIDs)
	}

	return nil, nil
}

// MockJobInserter is a mock implementation of JobInserter.
type MockJobInserter struct {
	mock.Mock
}

func (m *MockJobInserter) Insert(
	ctx context.Context, args river.JobArgs, opts *river.InsertOpts,
) (*rivertype.JobInsertResult, error) {
	called := m.Called(ctx, args, opts)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}

	return called.Get(0).(*rivertype.JobInsertResult), called.Error(1)
}

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) Invalidate() { c.calls.Add(1) }

// scenarioTopics is the three-topic catalog used across recommender tests.
func scenarioTopics() []models.Topic {
	return []models.Topic{
		{ID: 1, BroadLabel: "Math", SpecificLabel: "Calculus"},
		{ID: 2, BroadLabel: "Math", SpecificLabel: "Algebra"},
		{ID: 3, BroadLabel: "Art", SpecificLabel: "Painting"},
	}
}

func scenarioEncoder() *lookupEncoder {
	return &lookupEncoder{vectors: map[string][]float32{
		"Calculus": {1, 1, 0},
		"Algebra":  {1, 0, 0},
		"Painting": {0, 0, 1},
	}}
}
