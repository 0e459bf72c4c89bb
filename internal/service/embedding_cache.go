package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
	"github.com/expertshelf/hub/internal/observability"
	vec "github.com/expertshelf/hub/pkg/embeddings"
)

const defaultIndexBuildTimeout = 5 * time.Minute

// ErrIndexSuperseded is returned by a build that finished after the cache was invalidated.
var ErrIndexSuperseded = errors.New("topic index build superseded by invalidation")

// TopicCorpus reads the topic catalog.
type TopicCorpus interface {
	ListTopics(ctx context.Context) ([]models.Topic, error)
}

// Embedder maps texts to vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TopicVectorStore persists topic vectors across restarts.
type TopicVectorStore interface {
	ListTopicEmbeddings(ctx context.Context, model string) ([]models.TopicEmbedding, error)
	UpsertTopicEmbeddings(ctx context.Context, rows []models.TopicEmbedding) error
}

// TopicIndex is an immutable snapshot of every topic vector, built in one pass.
// Position i of the forward index, the matrix row i and positions[topics[i].ID] all agree.
type TopicIndex struct {
	topics    []models.Topic
	positions map[int64]int
	matrix    *vec.Matrix
	model     string
	builtAt   time.Time
}

// NewTopicIndex stacks vectors (one per topic, same order) into an index.
func NewTopicIndex(topics []models.Topic, vectors [][]float32, model string, builtAt time.Time) (*TopicIndex, error) {
	if len(topics) != len(vectors) {
		return nil, fmt.Errorf("%d topics but %d vectors", len(topics), len(vectors))
	}

	matrix, err := vec.NewMatrix(vectors)
	if err != nil {
		return nil, fmt.Errorf("stack topic vectors: %w", err)
	}

	idx := &TopicIndex{
		topics:    make([]models.Topic, len(topics)),
		positions: make(map[int64]int, len(topics)),
		matrix:    matrix,
		model:     model,
		builtAt:   builtAt,
	}
	copy(idx.topics, topics)

	for i, t := range topics {
		if _, dup := idx.positions[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic id %d", t.ID)
		}

		idx.positions[t.ID] = i
	}

	return idx, nil
}

// Len returns the number of indexed topics.
func (i *TopicIndex) Len() int { return len(i.topics) }

// Dimensions returns the vector width (0 for an empty index).
func (i *TopicIndex) Dimensions() int { return i.matrix.Dims() }

// Model returns the model the vectors were computed with.
func (i *TopicIndex) Model() string { return i.model }

// BuiltAt returns when the index was installed.
func (i *TopicIndex) BuiltAt() time.Time { return i.builtAt }

// TopicAt returns the topic at row pos.
func (i *TopicIndex) TopicAt(pos int) models.Topic { return i.topics[pos] }

// Topic looks up a topic by id.
func (i *TopicIndex) Topic(id int64) (models.Topic, bool) {
	pos, ok := i.positions[id]
	if !ok {
		return models.Topic{}, false
	}

	return i.topics[pos], true
}

// Vector returns the topic's vector. The slice aliases the index and must not be modified.
func (i *TopicIndex) Vector(id int64) ([]float32, bool) {
	pos, ok := i.positions[id]
	if !ok {
		return nil, false
	}

	return i.matrix.Row(pos), true
}

// Scores returns the cosine similarity of query against every row, by row position.
func (i *TopicIndex) Scores(query []float32) []float64 {
	return i.matrix.CosineScores(query)
}

// EmbeddingCache owns the process-wide TopicIndex. The index is built lazily on first
// demand and replaced only after Invalidate. Readers never see a partial index.
type EmbeddingCache struct {
	corpus       TopicCorpus
	embedder     Embedder
	store        TopicVectorStore
	model        string
	dimensions   int
	buildTimeout time.Duration
	metrics      observability.RecommenderMetrics
	logger       *slog.Logger

	current    atomic.Pointer[TopicIndex]
	generation atomic.Uint64
	// waiting counts callers blocked on an in-flight build.
	waiting atomic.Int32
	// mu orders the generation check and swap in a build against Invalidate.
	mu    sync.Mutex
	group singleflight.Group
}

// EmbeddingCacheParams configures EmbeddingCache. Store and Metrics may be nil.
type EmbeddingCacheParams struct {
	Corpus   TopicCorpus
	Embedder Embedder
	Store    TopicVectorStore
	Model    string
	// Dimensions filters persisted vectors of a different width. 0 accepts any width.
	Dimensions   int
	BuildTimeout time.Duration
	Metrics      observability.RecommenderMetrics
	Logger       *slog.Logger
}

// NewEmbeddingCache creates an empty cache.
func NewEmbeddingCache(p EmbeddingCacheParams) *EmbeddingCache {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := p.BuildTimeout
	if timeout <= 0 {
		timeout = defaultIndexBuildTimeout
	}

	return &EmbeddingCache{
		corpus:       p.Corpus,
		embedder:     p.Embedder,
		store:        p.Store,
		model:        p.Model,
		dimensions:   p.Dimensions,
		buildTimeout: timeout,
		metrics:      p.Metrics,
		logger:       logger,
	}
}

// Current returns the installed index, or nil when the cache is empty.
func (c *EmbeddingCache) Current() *TopicIndex {
	return c.current.Load()
}

// EnsureLoaded returns the installed index, building it first if the cache is empty.
// Concurrent callers share a single build. A caller whose ctx ends stops waiting;
// the build itself continues under the cache's build timeout.
func (c *EmbeddingCache) EnsureLoaded(ctx context.Context) (*TopicIndex, error) {
	for {
		if idx := c.current.Load(); idx != nil {
			return idx, nil
		}

		gen := c.generation.Load()
		ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
			return c.loadOrBuild(ctx, gen)
		})

		c.waiting.Add(1)

		select {
		case res := <-ch:
			c.waiting.Add(-1)

			if errors.Is(res.Err, ErrIndexSuperseded) {
				continue
			}

			if res.Err != nil {
				return nil, res.Err
			}

			idx, _ := res.Val.(*TopicIndex)

			return idx, nil
		case <-ctx.Done():
			c.waiting.Add(-1)

			return nil, fmt.Errorf("wait for topic index: %w", ctx.Err())
		}
	}
}

// loadOrBuild returns the index installed for gen, or builds one. A build for gen can
// finish and leave the singleflight group between a caller's empty read and its DoChan.
func (c *EmbeddingCache) loadOrBuild(ctx context.Context, gen uint64) (*TopicIndex, error) {
	c.mu.Lock()
	idx := c.current.Load()
	same := c.generation.Load() == gen
	c.mu.Unlock()

	if idx != nil && same {
		return idx, nil
	}

	return c.build(ctx, gen)
}

// Invalidate drops the installed index. Builds already running for the old
// generation finish without installing their result.
func (c *EmbeddingCache) Invalidate() {
	c.mu.Lock()
	c.generation.Add(1)
	c.current.Store(nil)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordIndexInvalidated(context.Background())
		c.metrics.SetIndexSize(0)
	}

	c.logger.Info("topic index invalidated")
}

// Status describes the installed index.
func (c *EmbeddingCache) Status() models.TopicIndexStatus {
	idx := c.current.Load()
	if idx == nil {
		return models.TopicIndexStatus{Model: c.model}
	}

	builtAt := idx.BuiltAt()

	return models.TopicIndexStatus{
		Loaded:     true,
		TopicCount: idx.Len(),
		Dimensions: idx.Dimensions(),
		Model:      idx.Model(),
		BuiltAt:    &builtAt,
	}
}

func (c *EmbeddingCache) build(callerCtx context.Context, gen uint64) (*TopicIndex, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(callerCtx), c.buildTimeout)
	defer cancel()

	ctx, span := observability.Tracer().Start(ctx, "EmbeddingCache.build",
		trace.WithAttributes(attribute.Int64("generation", int64(gen)))) //nolint:gosec // G115: generation fits
	defer span.End()

	started := time.Now()
	outcome := "success"

	defer func() {
		if c.metrics != nil {
			c.metrics.RecordIndexBuild(ctx, outcome, time.Since(started))
		}
	}()

	fail := func(o string, err error) (*TopicIndex, error) {
		outcome = o
		span.RecordError(err)
		span.SetStatus(codes.Error, o)
		c.logger.Error("topic index build failed", "outcome", o, "error", err)

		return nil, err
	}

	topics, err := c.corpus.ListTopics(ctx)
	if err != nil {
		return fail("corpus_failed", apperrors.NewDataUnavailableError("topic corpus", err))
	}

	vectors, persisted, err := c.topicVectors(ctx, topics)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail("timeout", fmt.Errorf("embed topic labels: %w", err))
		}

		return fail("encode_failed", fmt.Errorf("embed topic labels: %w", err))
	}

	idx, err := NewTopicIndex(topics, vectors, c.model, time.Now().UTC())
	if err != nil {
		return fail("index_failed", err)
	}

	c.mu.Lock()
	if c.generation.Load() != gen {
		c.mu.Unlock()
		outcome = "superseded"

		return nil, ErrIndexSuperseded
	}

	c.current.Store(idx)
	c.mu.Unlock()

	if !persisted {
		outcome = "persist_degraded"
	}

	if c.metrics != nil {
		c.metrics.SetIndexSize(idx.Len())
	}

	span.SetAttributes(attribute.Int("topic_count", idx.Len()))
	c.logger.Info("topic index built",
		"topic_count", idx.Len(),
		"dimensions", idx.Dimensions(),
		"model", c.model,
		"duration", time.Since(started),
	)

	return idx, nil
}

// topicVectors returns one vector per topic. Persisted vectors whose label is unchanged are
// reused; the rest are embedded and written back. persisted is false when write-back failed.
func (c *EmbeddingCache) topicVectors(ctx context.Context, topics []models.Topic) ([][]float32, bool, error) {
	vectors := make([][]float32, len(topics))
	stored := c.loadStored(ctx)

	var (
		missing []int
		labels  []string
	)

	for i, t := range topics {
		if row, ok := stored[t.ID]; ok && row.Label == t.SpecificLabel {
			vectors[i] = row.Embedding

			continue
		}

		missing = append(missing, i)
		labels = append(labels, t.SpecificLabel)
	}

	if c.metrics != nil && len(topics) > len(missing) {
		c.metrics.RecordVectorsReused(ctx, len(topics)-len(missing))
	}

	if len(missing) == 0 {
		return vectors, true, nil
	}

	fresh, err := c.embedder.Embed(ctx, labels)
	if err != nil {
		return nil, false, err
	}

	if len(fresh) != len(missing) {
		return nil, false, fmt.Errorf("%w: got %d, want %d", ErrEncoderCountMismatch, len(fresh), len(missing))
	}

	rows := make([]models.TopicEmbedding, len(missing))

	for j, i := range missing {
		vectors[i] = fresh[j]
		rows[j] = models.TopicEmbedding{
			TopicID:   topics[i].ID,
			Model:     c.model,
			Label:     topics[i].SpecificLabel,
			Embedding: fresh[j],
		}
	}

	return vectors, c.persist(ctx, rows), nil
}

func (c *EmbeddingCache) loadStored(ctx context.Context) map[int64]models.TopicEmbedding {
	if c.store == nil {
		return nil
	}

	rows, err := c.store.ListTopicEmbeddings(ctx, c.model)
	if err != nil {
		c.logger.Warn("list persisted topic vectors failed, embedding all labels", "model", c.model, "error", err)

		return nil
	}

	out := make(map[int64]models.TopicEmbedding, len(rows))

	for _, row := range rows {
		if len(row.Embedding) == 0 || (c.dimensions > 0 && len(row.Embedding) != c.dimensions) {
			continue
		}

		out[row.TopicID] = row
	}

	return out
}

func (c *EmbeddingCache) persist(ctx context.Context, rows []models.TopicEmbedding) bool {
	if c.store == nil {
		return true
	}

	if err := c.store.UpsertTopicEmbeddings(ctx, rows); err != nil {
		c.logger.Warn("persist topic vectors failed", "model", c.model, "rows", len(rows), "error", err)

		return false
	}

	return true
}
