package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
)

func newScenarioCache(corpus *fakeCorpus, enc *lookupEncoder, store TopicVectorStore) *EmbeddingCache {
	return NewEmbeddingCache(EmbeddingCacheParams{
		Corpus:   corpus,
		Embedder: enc,
		Store:    store,
		Model:    "test-model",
	})
}

func TestEmbeddingCache_EnsureLoaded(t *testing.T) {
	t.Run("builds forward and reverse index", func(t *testing.T) {
		corpus := &fakeCorpus{topics: scenarioTopics()}
		cache := newScenarioCache(corpus, scenarioEncoder(), nil)

		idx, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)
		require.Equal(t, 3, idx.Len())
		assert.Equal(t, 3, idx.Dimensions())

		for pos := range idx.Len() {
			topic := idx.TopicAt(pos)
			v, ok := idx.Vector(topic.ID)
			require.True(t, ok)
			assert.Equal(t, scenarioEncoder().vectors[topic.SpecificLabel], v)
		}

		_, ok := idx.Vector(99)
		assert.False(t, ok)
	})

	t.Run("is idempotent", func(t *testing.T) {
		corpus := &fakeCorpus{topics: scenarioTopics()}
		enc := scenarioEncoder()
		cache := newScenarioCache(corpus, enc, nil)

		first, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)
		second, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, int32(1), corpus.calls.Load())
		assert.Equal(t, int32(1), enc.calls.Load())
	})

	t.Run("concurrent first loads share one build", func(t *testing.T) {
		corpus := &fakeCorpus{topics: scenarioTopics()}
		enc := scenarioEncoder()
		enc.gate = make(chan struct{})
		enc.entered = make(chan struct{}, 1)
		cache := newScenarioCache(corpus, enc, nil)

		var wg sync.WaitGroup

		results := make([]*TopicIndex, 2)
		errs := make([]error, 2)

		wg.Add(1)

		go func() {
			defer wg.Done()

			results[0], errs[0] = cache.EnsureLoaded(context.Background())
		}()

		<-enc.entered

		wg.Add(1)

		go func() {
			defer wg.Done()

			results[1], errs[1] = cache.EnsureLoaded(context.Background())
		}()

		// Both callers must be parked on the same in-flight build before it may finish.
		require.Eventually(t, func() bool { return cache.waiting.Load() == 2 }, 2*time.Second, time.Millisecond)
		assert.Nil(t, cache.Current())

		close(enc.gate)
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Same(t, results[0], results[1])
		assert.Equal(t, int32(1), enc.calls.Load())
		assert.Equal(t, int32(1), corpus.calls.Load())
		assert.Zero(t, cache.waiting.Load())
	})

	t.Run("late joiner reuses the index built for its generation", func(t *testing.T) {
		corpus := &fakeCorpus{topics: scenarioTopics()}
		enc := scenarioEncoder()
		cache := newScenarioCache(corpus, enc, nil)

		// A caller that read an empty cache at generation 0 reaches the build path
		// after another caller's build for generation 0 already finished.
		gen := cache.generation.Load()

		first, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)

		again, err := cache.loadOrBuild(context.Background(), gen)
		require.NoError(t, err)

		assert.Same(t, first, again)
		assert.Same(t, first, cache.Current())
		assert.Equal(t, int32(1), enc.calls.Load())
		assert.Equal(t, int32(1), corpus.calls.Load())
	})

	t.Run("stale generation build is superseded after invalidate", func(t *testing.T) {
		corpus := &fakeCorpus{topics: scenarioTopics()}
		enc := scenarioEncoder()
		cache := newScenarioCache(corpus, enc, nil)

		gen := cache.generation.Load()

		_, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)

		cache.Invalidate()

		_, err = cache.loadOrBuild(context.Background(), gen)
		require.ErrorIs(t, err, ErrIndexSuperseded)
		assert.Nil(t, cache.Current())
	})

	t.Run("corpus failure leaves cache empty", func(t *testing.T) {
		corpus := &fakeCorpus{err: errors.New("connection refused")}
		cache := newScenarioCache(corpus, scenarioEncoder(), nil)

		_, err := cache.EnsureLoaded(context.Background())
		require.ErrorIs(t, err, apperrors.ErrDataUnavailable)
		assert.Nil(t, cache.Current())
		assert.False(t, cache.Status().Loaded)

		corpus.set(scenarioTopics(), nil)

		idx, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, idx.Len())
	})

	t.Run("encoder failure installs nothing", func(t *testing.T) {
		corpus := &fakeCorpus{topics: scenarioTopics()}
		cache := newScenarioCache(corpus, &lookupEncoder{err: errors.New("model not loaded")}, nil)

		_, err := cache.EnsureLoaded(context.Background())
		require.Error(t, err)
		assert.Nil(t, cache.Current())
	})

	t.Run("empty corpus installs an empty index", func(t *testing.T) {
		enc := scenarioEncoder()
		cache := newScenarioCache(&fakeCorpus{}, enc, nil)

		idx, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())
		assert.Zero(t, enc.calls.Load())
		assert.True(t, cache.Status().Loaded)
	})

	t.Run("cancelled caller stops waiting while the build finishes", func(t *testing.T) {
		corpus := &fakeCorpus{topics: scenarioTopics()}
		enc := scenarioEncoder()
		enc.gate = make(chan struct{})
		enc.entered = make(chan struct{}, 1)
		cache := newScenarioCache(corpus, enc, nil)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)

		go func() {
			_, err := cache.EnsureLoaded(ctx)
			errCh <- err
		}()

		<-enc.entered
		cancel()

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("EnsureLoaded did not return after cancellation")
		}

		close(enc.gate)

		require.Eventually(t, func() bool { return cache.Current() != nil }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestEmbeddingCache_Invalidate(t *testing.T) {
	t.Run("rebuild reflects the current corpus", func(t *testing.T) {
		corpus := &fakeCorpus{topics: scenarioTopics()}
		enc := scenarioEncoder()
		enc.vectors["Sculpture"] = []float32{0, 1, 1}
		cache := newScenarioCache(corpus, enc, nil)

		_, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)

		corpus.set([]models.Topic{
			{ID: 1, BroadLabel: "Math", SpecificLabel: "Calculus"},
			{ID: 4, BroadLabel: "Art", SpecificLabel: "Sculpture"},
		}, nil)

		cache.Invalidate()
		assert.Nil(t, cache.Current())

		idx, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, idx.Len())

		_, ok := idx.Vector(2)
		assert.False(t, ok, "deleted topic must not survive a rebuild")

		_, ok = idx.Vector(4)
		assert.True(t, ok)
	})

	t.Run("invalidate during build supersedes it", func(t *testing.T) {
		corpus := &fakeCorpus{topics: scenarioTopics()}
		enc := scenarioEncoder()
		enc.gate = make(chan struct{})
		enc.entered = make(chan struct{}, 1)
		cache := newScenarioCache(corpus, enc, nil)

		type result struct {
			idx *TopicIndex
			err error
		}

		done := make(chan result, 1)

		go func() {
			idx, err := cache.EnsureLoaded(context.Background())
			done <- result{idx, err}
		}()

		<-enc.entered

		corpus.set(scenarioTopics()[:2], nil)
		cache.Invalidate()
		close(enc.gate)

		res := <-done
		require.NoError(t, res.err)
		assert.Equal(t, 2, res.idx.Len(), "the superseded build must not be installed")
		assert.Equal(t, int32(2), corpus.calls.Load())
	})
}

func TestEmbeddingCache_VectorStore(t *testing.T) {
	t.Run("reuses vectors whose label is unchanged", func(t *testing.T) {
		store := &fakeVectorStore{rows: []models.TopicEmbedding{
			{TopicID: 1, Model: "test-model", Label: "Calculus", Embedding: []float32{9, 9, 9}},
			{TopicID: 2, Model: "test-model", Label: "Old Algebra", Embedding: []float32{5, 5, 5}},
			{TopicID: 3, Model: "other-model", Label: "Painting", Embedding: []float32{7, 7, 7}},
		}}
		enc := scenarioEncoder()
		cache := newScenarioCache(&fakeCorpus{topics: scenarioTopics()}, enc, store)

		idx, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)

		v, _ := idx.Vector(1)
		assert.Equal(t, []float32{9, 9, 9}, v)

		v, _ = idx.Vector(2)
		assert.Equal(t, []float32{1, 0, 0}, v)

		assert.Equal(t, [][]string{{"Algebra", "Painting"}}, enc.batches())

		require.Len(t, store.upserted, 2)
		assert.Equal(t, int64(2), store.upserted[0].TopicID)
		assert.Equal(t, "Algebra", store.upserted[0].Label)
		assert.Equal(t, "test-model", store.upserted[0].Model)
	})

	t.Run("store failures do not fail the build", func(t *testing.T) {
		store := &fakeVectorStore{listErr: errors.New("read"), upsertErr: errors.New("write")}
		cache := newScenarioCache(&fakeCorpus{topics: scenarioTopics()}, scenarioEncoder(), store)

		idx, err := cache.EnsureLoaded(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, idx.Len())
	})
}

func TestNewTopicIndex_DuplicateIDs(t *testing.T) {
	topics := []models.Topic{{ID: 1, SpecificLabel: "a"}, {ID: 1, SpecificLabel: "b"}}

	_, err := NewTopicIndex(topics, [][]float32{{1}, {2}}, "m", time.Now())
	require.Error(t, err)
}
