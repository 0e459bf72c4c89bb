package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/expertshelf/hub/internal/embeddings"
	"github.com/expertshelf/hub/internal/observability"
	vec "github.com/expertshelf/hub/pkg/embeddings"
	"github.com/expertshelf/hub/pkg/workerpool"
)

const (
	labelEmbeddingCacheName = "label_embedding"
	defaultEmbedBatchSize   = 16
)

// ErrEncoderCountMismatch is returned when the encoder returns a different number of rows than inputs.
var ErrEncoderCountMismatch = errors.New("encoder returned wrong number of vectors")

// TextEmbedder batches texts, runs each batch on the worker pool and memoizes results per label.
// Safe for concurrent use.
type TextEmbedder struct {
	encoder      embeddings.Encoder
	pool         *workerpool.Pool
	batchSize    int
	model        string
	limiter      *rate.Limiter
	memo         *lru.Cache[string, []float32]
	metrics      observability.EmbeddingMetrics
	cacheMetrics observability.CacheMetrics
	logger       *slog.Logger
}

// TextEmbedderParams configures TextEmbedder. RateLimiter, Memo, Metrics and CacheMetrics may be nil.
type TextEmbedderParams struct {
	Encoder      embeddings.Encoder
	Pool         *workerpool.Pool
	BatchSize    int
	Model        string
	RateLimiter  *rate.Limiter
	Memo         *lru.Cache[string, []float32]
	Metrics      observability.EmbeddingMetrics
	CacheMetrics observability.CacheMetrics
	Logger       *slog.Logger
}

// NewTextEmbedder creates a TextEmbedder. A nil Pool gets one sized to the CPU count.
func NewTextEmbedder(p TextEmbedderParams) *TextEmbedder {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool := p.Pool
	if pool == nil {
		pool = workerpool.New(0)
	}

	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}

	return &TextEmbedder{
		encoder:      p.Encoder,
		pool:         pool,
		batchSize:    batchSize,
		model:        p.Model,
		limiter:      p.RateLimiter,
		memo:         p.Memo,
		metrics:      p.Metrics,
		cacheMetrics: p.CacheMetrics,
		logger:       logger,
	}
}

// Model returns the model name vectors are attributed to.
func (e *TextEmbedder) Model() string {
	return e.model
}

// Embed returns one vector per text in input order. Texts are encoded in batches of the
// configured size, each batch on a pool worker. The call returns as soon as ctx is done.
// Returned vectors are shared with the memo and must not be modified.
func (e *TextEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, span := observability.Tracer().Start(ctx, "TextEmbedder.Embed",
		trace.WithAttributes(attribute.Int("texts", len(texts)), attribute.String("model", e.model)))
	defer span.End()

	out := make([][]float32, len(texts))

	// Unique memo misses; positions lists every index waiting on each.
	var pending []string

	positions := make(map[string][]int)

	for i, t := range texts {
		if v, ok := e.memoGet(t); ok {
			out[i] = v

			continue
		}

		if _, seen := positions[t]; !seen {
			pending = append(pending, t)
		}

		positions[t] = append(positions[t], i)
	}

	if e.cacheMetrics != nil {
		e.cacheMetrics.RecordHits(ctx, labelEmbeddingCacheName, len(texts)-countPositions(positions))
		e.cacheMetrics.RecordMisses(ctx, labelEmbeddingCacheName, len(pending))
	}

	encoded, err := e.encodeBatches(ctx, pending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")

		return nil, err
	}

	for j, t := range pending {
		e.memoAdd(t, encoded[j])

		for _, i := range positions[t] {
			out[i] = encoded[j]
		}
	}

	dims := len(out[0])
	for i, v := range out {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: text %d has %d dimensions, want %d", vec.ErrDimensionMismatch, i, len(v), dims)
		}
	}

	return out, nil
}

func (e *TextEmbedder) encodeBatches(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.pool.Size())

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		g.Go(func() error {
			vectors, err := e.encodeBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("encode batch [%d:%d]: %w", start, end, err)
			}

			copy(out[start:end], vectors)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

func (e *TextEmbedder) encodeBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	started := time.Now()

	var vectors [][]float32

	err := e.pool.Do(ctx, func() error {
		v, err := e.encoder.Embed(ctx, batch)
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}

		vectors = v

		return nil
	})
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("%w: got %d, want %d", ErrEncoderCountMismatch, len(vectors), len(batch))
	}

	if e.metrics != nil {
		e.metrics.RecordBatch(ctx, encodeStatus(err), time.Since(started), len(batch))
	}

	if err != nil {
		e.logger.Debug("encode batch failed", "model", e.model, "batch_size", len(batch), "error", err)

		return nil, err
	}

	return vectors, nil
}

func encodeStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}

func (e *TextEmbedder) memoKey(text string) string {
	return e.model + "\x00" + text
}

func (e *TextEmbedder) memoGet(text string) ([]float32, bool) {
	if e.memo == nil {
		return nil, false
	}

	return e.memo.Get(e.memoKey(text))
}

func (e *TextEmbedder) memoAdd(text string, v []float32) {
	if e.memo != nil {
		e.memo.Add(e.memoKey(text), v)
	}
}

func countPositions(positions map[string][]int) int {
	n := 0
	for _, idx := range positions {
		n += len(idx)
	}

	return n
}
