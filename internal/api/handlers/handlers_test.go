package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
)

type mockRecommendationService struct {
	recommendFunc func(ctx context.Context, userID int64, topK int) ([]models.RecommendationGroup, error)
}

func (m *mockRecommendationService) Recommend(ctx context.Context, userID int64, topK int) ([]models.RecommendationGroup, error) {
	if m.recommendFunc != nil {
		return m.recommendFunc(ctx, userID, topK)
	}

	return nil, nil
}

type mockActivityService struct {
	logFunc func(ctx context.Context, req *models.CreateActivityEventRequest) (*models.ActivityEvent, error)
}

func (m *mockActivityService) Log(ctx context.Context, req *models.CreateActivityEventRequest) (*models.ActivityEvent, error) {
	if m.logFunc != nil {
		return m.logFunc(ctx, req)
	}

	return &models.ActivityEvent{ID: 1, UserID: req.UserID, Kind: models.ActivityKind(req.Kind), TopicID: req.TopicID}, nil
}

type mockTopicIndex struct {
	status      models.TopicIndexStatus
	invalidated int
}

func (m *mockTopicIndex) Status() models.TopicIndexStatus { return m.status }
func (m *mockTopicIndex) Invalidate()                     { m.invalidated++ }

type mockCatalogService struct {
	rebuildFunc func(ctx context.Context, reason string) error
	deleteFunc  func(ctx context.Context, id int64) error
}

func (m *mockCatalogService) RequestRebuild(ctx context.Context, reason string) error {
	if m.rebuildFunc != nil {
		return m.rebuildFunc(ctx, reason)
	}

	return nil
}

func (m *mockCatalogService) DeleteTopic(ctx context.Context, id int64) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}

	return nil
}

func recommendationsRequest(handler *RecommendationsHandler, userID, query string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/{user_id}/recommendations", handler.Get)

	req := httptest.NewRequest(http.MethodGet, "http://test/v1/users/"+userID+"/recommendations"+query, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	return rec
}

func TestRecommendationsHandler_Get(t *testing.T) {
	t.Run("success returns groups", func(t *testing.T) {
		mock := &mockRecommendationService{
			recommendFunc: func(_ context.Context, userID int64, topK int) ([]models.RecommendationGroup, error) {
				assert.Equal(t, int64(42), userID)
				assert.Equal(t, 3, topK)

				return []models.RecommendationGroup{{
					TopicID: 2, BroadLabel: "Math", SpecificLabel: "Algebra",
					Items: []models.RecommendedItem{{ContributorName: "Emmy", Title: "Rings"}},
				}}, nil
			},
		}

		rec := recommendationsRequest(NewRecommendationsHandler(mock), "42", "?topK=3")
		require.Equal(t, http.StatusOK, rec.Code)

		var body models.RecommendationsResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.False(t, body.InsufficientHistory)
		require.Len(t, body.Data, 1)
		assert.Equal(t, "Algebra", body.Data[0].SpecificLabel)
		assert.Equal(t, "Rings", body.Data[0].Items[0].Title)
	})

	t.Run("missing topK passes zero", func(t *testing.T) {
		var got int

		mock := &mockRecommendationService{
			recommendFunc: func(_ context.Context, _ int64, topK int) ([]models.RecommendationGroup, error) {
				got = topK

				return []models.RecommendationGroup{}, nil
			},
		}

		rec := recommendationsRequest(NewRecommendationsHandler(mock), "42", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, got)
	})

	t.Run("no history is an empty list, not null", func(t *testing.T) {
		rec := recommendationsRequest(NewRecommendationsHandler(&mockRecommendationService{}), "7", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":[],"insufficient_history":true}`, rec.Body.String())
	})

	t.Run("invalid user id", func(t *testing.T) {
		for _, id := range []string{"abc", "0", "-3"} {
			rec := recommendationsRequest(NewRecommendationsHandler(&mockRecommendationService{}), id, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, id)
		}
	})

	t.Run("invalid topK", func(t *testing.T) {
		for _, q := range []string{"?topK=abc", "?topK=-2", "?topK=101"} {
			rec := recommendationsRequest(NewRecommendationsHandler(&mockRecommendationService{}), "1", q)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})

	t.Run("unavailable returns 503", func(t *testing.T) {
		mock := &mockRecommendationService{
			recommendFunc: func(context.Context, int64, int) ([]models.RecommendationGroup, error) {
				return nil, apperrors.NewRecommendationUnavailableError(
					apperrors.NewDataUnavailableError("topic corpus", errors.New("connection refused")))
			},
		}

		rec := recommendationsRequest(NewRecommendationsHandler(mock), "1", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "5", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "recommendation-unavailable")
	})

	t.Run("topK above the service maximum returns 400", func(t *testing.T) {
		mock := &mockRecommendationService{
			recommendFunc: func(context.Context, int64, int) ([]models.RecommendationGroup, error) {
				return nil, apperrors.NewValidationError("topK", "must be at most 50")
			},
		}

		rec := recommendationsRequest(NewRecommendationsHandler(mock), "1", "?topK=80")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "at most 50")
	})

	t.Run("unexpected error returns 500", func(t *testing.T) {
		mock := &mockRecommendationService{
			recommendFunc: func(context.Context, int64, int) ([]models.RecommendationGroup, error) {
				return nil, errors.New("boom")
			},
		}

		rec := recommendationsRequest(NewRecommendationsHandler(mock), "1", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestActivityHandler_Create(t *testing.T) {
	post := func(h *ActivityHandler, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/activity", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")

		rec := httptest.NewRecorder()
		h.Create(rec, req)

		return rec
	}

	t.Run("created", func(t *testing.T) {
		rec := post(NewActivityHandler(&mockActivityService{}), `{"user_id":5,"kind":"viewed_expert_content","topic_id":2}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var ev models.ActivityEvent
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&ev))
		assert.Equal(t, int64(5), ev.UserID)
		require.NotNil(t, ev.TopicID)
		assert.Equal(t, int64(2), *ev.TopicID)
	})

	t.Run("bad body", func(t *testing.T) {
		for _, body := range []string{`{`, `{"user_id":1,"kind":"start_bot","extra":1}`} {
			rec := post(NewActivityHandler(&mockActivityService{}), body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
	})

	t.Run("validation errors", func(t *testing.T) {
		called := false
		mock := &mockActivityService{
			logFunc: func(context.Context, *models.CreateActivityEventRequest) (*models.ActivityEvent, error) {
				called = true

				return nil, nil
			},
		}

		for _, body := range []string{`{"kind":"start_bot"}`, `{"user_id":1,"kind":"clicked"}`, `{"user_id":1,"kind":"subscribe","topic_id":-1}`} {
			rec := post(NewActivityHandler(mock), body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}

		assert.False(t, called)
	})

	t.Run("unknown topic", func(t *testing.T) {
		mock := &mockActivityService{
			logFunc: func(context.Context, *models.CreateActivityEventRequest) (*models.ActivityEvent, error) {
				return nil, apperrors.NewNotFoundError("topic", "topic not found")
			},
		}

		rec := post(NewActivityHandler(mock), `{"user_id":1,"kind":"viewed_expert_content","topic_id":99}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTopicIndexHandler(t *testing.T) {
	builtAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("status", func(t *testing.T) {
		idx := &mockTopicIndex{status: models.TopicIndexStatus{
			Loaded: true, TopicCount: 3, Dimensions: 512, Model: "hashing-512", BuiltAt: &builtAt,
		}}
		h := NewTopicIndexHandler(idx, &mockCatalogService{})

		rec := httptest.NewRecorder()
		h.Status(rec, httptest.NewRequest(http.MethodGet, "http://test/v1/admin/topic-index", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var got models.TopicIndexStatus
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.True(t, got.Loaded)
		assert.Equal(t, 3, got.TopicCount)
		assert.Equal(t, "hashing-512", got.Model)
	})

	t.Run("invalidate only", func(t *testing.T) {
		idx := &mockTopicIndex{}
		rebuilds := 0
		h := NewTopicIndexHandler(idx, &mockCatalogService{rebuildFunc: func(context.Context, string) error {
			rebuilds++

			return nil
		}})

		rec := httptest.NewRecorder()
		h.Invalidate(rec, httptest.NewRequest(http.MethodPost, "http://test/v1/admin/topic-index/invalidate", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, 1, idx.invalidated)
		assert.Zero(t, rebuilds)
		assert.JSONEq(t, `{"invalidated":true,"rebuild_enqueued":false}`, rec.Body.String())
	})

	t.Run("invalidate with rebuild", func(t *testing.T) {
		var reason string

		h := NewTopicIndexHandler(&mockTopicIndex{}, &mockCatalogService{rebuildFunc: func(_ context.Context, r string) error {
			reason = r

			return nil
		}})

		rec := httptest.NewRecorder()
		h.Invalidate(rec, httptest.NewRequest(http.MethodPost, "http://test/v1/admin/topic-index/invalidate?rebuild=true", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "admin", reason)
		assert.JSONEq(t, `{"invalidated":true,"rebuild_enqueued":true}`, rec.Body.String())
	})

	t.Run("rebuild enqueue failure", func(t *testing.T) {
		h := NewTopicIndexHandler(&mockTopicIndex{}, &mockCatalogService{rebuildFunc: func(context.Context, string) error {
			return errors.New("queue down")
		}})

		rec := httptest.NewRecorder()
		h.Invalidate(rec, httptest.NewRequest(http.MethodPost, "http://test/v1/admin/topic-index/invalidate?rebuild=true", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "rebuild-not-enqueued")
		assert.Empty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("bad rebuild flag", func(t *testing.T) {
		h := NewTopicIndexHandler(&mockTopicIndex{}, &mockCatalogService{})

		rec := httptest.NewRecorder()
		h.Invalidate(rec, httptest.NewRequest(http.MethodPost, "http://test/v1/admin/topic-index/invalidate?rebuild=maybe", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTopicIndexHandler_DeleteTopic(t *testing.T) {
	del := func(h *TopicIndexHandler, id string) *httptest.ResponseRecorder {
		mux := http.NewServeMux()
		mux.HandleFunc("DELETE /v1/topics/{id}", h.DeleteTopic)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "http://test/v1/topics/"+id, nil))

		return rec
	}

	catalog := &mockCatalogService{deleteFunc: func(_ context.Context, id int64) error {
		if id == 404 {
			return apperrors.NewNotFoundError("topic", "topic not found")
		}

		if id == 500 {
			return fmt.Errorf("delete topic: %w", errors.New("conn reset"))
		}

		return nil
	}}
	h := NewTopicIndexHandler(&mockTopicIndex{}, catalog)

	assert.Equal(t, http.StatusNoContent, del(h, "3").Code)
	assert.Equal(t, http.StatusNotFound, del(h, "404").Code)
	assert.Equal(t, http.StatusInternalServerError, del(h, "500").Code)
	assert.Equal(t, http.StatusBadRequest, del(h, "x").Code)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler_Check(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{}).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("down")}).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(nil).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
