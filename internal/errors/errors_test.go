package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	err := fmt.Errorf("delete topic: %w", NewNotFoundError("topic", ""))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "delete topic: topic not found", err.Error())
}

func TestDataUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDataUnavailableError("topic corpus", cause)

	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "topic corpus unavailable: connection refused", err.Error())
}

func TestRecommendationUnavailableError(t *testing.T) {
	t.Run("keeps the cause reachable", func(t *testing.T) {
		cause := NewDataUnavailableError("activity log", context.DeadlineExceeded)
		err := fmt.Errorf("handler: %w", NewRecommendationUnavailableError(cause))

		assert.ErrorIs(t, err, ErrRecommendationUnavailable)
		assert.ErrorIs(t, err, ErrDataUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("without cause", func(t *testing.T) {
		assert.Equal(t, "recommendation unavailable", (&RecommendationUnavailableError{}).Error())
	})
}
