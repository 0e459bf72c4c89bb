package service

import (
	"context"
	"errors"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expertshelf/hub/pkg/workerpool"
)

func digitEncoder() *lookupEncoder {
	return &lookupEncoder{vectors: map[string][]float32{
		"a": {1, 0}, "b": {0, 1}, "c": {1, 1}, "d": {2, 0}, "e": {0, 2},
	}}
}

func TestTextEmbedder_Embed(t *testing.T) {
	t.Run("keeps input order across batches", func(t *testing.T) {
		enc := digitEncoder()
		e := NewTextEmbedder(TextEmbedderParams{Encoder: enc, Pool: workerpool.New(2), BatchSize: 2})

		got, err := e.Embed(context.Background(), []string{"e", "d", "c", "b", "a"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0, 2}, {2, 0}, {1, 1}, {0, 1}, {1, 0}}, got)
		assert.Equal(t, int32(3), enc.calls.Load())

		for _, batch := range enc.batches() {
			assert.LessOrEqual(t, len(batch), 2)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		enc := digitEncoder()
		e := NewTextEmbedder(TextEmbedderParams{Encoder: enc})

		got, err := e.Embed(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Zero(t, enc.calls.Load())
	})

	t.Run("duplicates are encoded once", func(t *testing.T) {
		enc := digitEncoder()
		e := NewTextEmbedder(TextEmbedderParams{Encoder: enc, BatchSize: 16})

		got, err := e.Embed(context.Background(), []string{"a", "b", "a"})
		require.NoError(t, err)
		assert.Equal(t, got[0], got[2])
		assert.Equal(t, [][]string{{"a", "b"}}, enc.batches())
	})

	t.Run("memo skips the encoder", func(t *testing.T) {
		memo, err := lru.New[string, []float32](16)
		require.NoError(t, err)

		enc := digitEncoder()
		e := NewTextEmbedder(TextEmbedderParams{Encoder: enc, Memo: memo, Model: "m"})

		_, err = e.Embed(context.Background(), []string{"a", "b"})
		require.NoError(t, err)

		got, err := e.Embed(context.Background(), []string{"b", "c"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, got)
		assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, enc.batches())
	})

	t.Run("encoder error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		e := NewTextEmbedder(TextEmbedderParams{Encoder: &lookupEncoder{err: boom}})

		_, err := e.Embed(context.Background(), []string{"a"})
		require.ErrorIs(t, err, boom)
	})

	t.Run("mixed dimensions rejected", func(t *testing.T) {
		enc := &lookupEncoder{vectors: map[string][]float32{"a": {1, 0}, "b": {1, 0, 0}}}
		e := NewTextEmbedder(TextEmbedderParams{Encoder: enc, BatchSize: 1})

		_, err := e.Embed(context.Background(), []string{"a", "b"})
		require.Error(t, err)
	})

	t.Run("caller can abandon the wait", func(t *testing.T) {
		enc := digitEncoder()
		enc.gate = make(chan struct{})
		enc.entered = make(chan struct{}, 1)
		defer close(enc.gate)

		e := NewTextEmbedder(TextEmbedderParams{Encoder: enc, Pool: workerpool.New(1)})

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)

		go func() {
			_, err := e.Embed(ctx, []string{"a"})
			errCh <- err
		}()

		<-enc.entered
		cancel()

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("Embed did not return after cancellation")
		}
	})
}
