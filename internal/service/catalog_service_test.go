package service

import (
	"context"
	"errors"
	"testing"

	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
)

type fakeCatalogRepo struct {
	importFunc func(ctx context.Context, rows []models.CatalogRow) (*models.ImportSummary, error)
	deleteFunc func(ctx context.Context, id int64) error
}

func (f *fakeCatalogRepo) ImportCatalog(ctx context.Context, rows []models.CatalogRow) (*models.ImportSummary, error) {
	if f.importFunc != nil {
		return f.importFunc(ctx, rows)
	}

	return &models.ImportSummary{}, nil
}

func (f *fakeCatalogRepo) DeleteTopic(ctx context.Context, id int64) error {
	if f.deleteFunc != nil {
		return f.deleteFunc(ctx, id)
	}

	return nil
}

func rebuildArgs(reason string) any {
	return mock.MatchedBy(func(args IndexRebuildArgs) bool { return args.Reason == reason })
}

func TestCatalogService_Import(t *testing.T) {
	rows := []models.CatalogRow{{
		BroadLabel: "Math", SpecificLabel: "Algebra", ContributorName: "Ada", Title: "Linear Algebra Done Right",
	}}

	t.Run("imports and enqueues a rebuild", func(t *testing.T) {
		inserter := new(MockJobInserter)
		inserter.On("Insert", mock.Anything, rebuildArgs(RebuildReasonCatalogImport), mock.Anything).
			Return(&rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: 11}}, nil).Once()

		cache := &countingInvalidator{}
		svc := NewCatalogService(CatalogServiceParams{
			Repo: &fakeCatalogRepo{importFunc: func(_ context.Context, got []models.CatalogRow) (*models.ImportSummary, error) {
				assert.Equal(t, rows, got)

				return &models.ImportSummary{TopicsCreated: 1, ItemsCreated: 1}, nil
			}},
			Inserter: inserter,
			Cache:    cache,
		})

		summary, err := svc.Import(context.Background(), rows)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.TopicsCreated)
		assert.Equal(t, int32(1), cache.calls.Load())
		inserter.AssertExpectations(t)
	})

	t.Run("empty catalog is a validation error", func(t *testing.T) {
		svc := NewCatalogService(CatalogServiceParams{Repo: &fakeCatalogRepo{}})

		_, err := svc.Import(context.Background(), nil)
		require.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("repository failure enqueues nothing", func(t *testing.T) {
		inserter := new(MockJobInserter)
		svc := NewCatalogService(CatalogServiceParams{
			Repo: &fakeCatalogRepo{importFunc: func(context.Context, []models.CatalogRow) (*models.ImportSummary, error) {
				return nil, errors.New("unique violation")
			}},
			Inserter: inserter,
		})

		_, err := svc.Import(context.Background(), rows)
		require.Error(t, err)
		inserter.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("enqueue failure still returns the summary", func(t *testing.T) {
		inserter := new(MockJobInserter)
		inserter.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("queue down"))

		svc := NewCatalogService(CatalogServiceParams{Repo: &fakeCatalogRepo{}, Inserter: inserter})

		summary, err := svc.Import(context.Background(), rows)
		require.ErrorIs(t, err, ErrRebuildNotEnqueued)
		assert.NotNil(t, summary)
	})
}

func TestCatalogService_DeleteTopic(t *testing.T) {
	t.Run("not found passes through", func(t *testing.T) {
		inserter := new(MockJobInserter)
		svc := NewCatalogService(CatalogServiceParams{
			Repo: &fakeCatalogRepo{deleteFunc: func(context.Context, int64) error {
				return apperrors.NewNotFoundError("topic", "topic not found")
			}},
			Inserter: inserter,
		})

		err := svc.DeleteTopic(context.Background(), 4)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
		inserter.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalidates and enqueues", func(t *testing.T) {
		inserter := new(MockJobInserter)
		inserter.On("Insert", mock.Anything, rebuildArgs(RebuildReasonTopicDeleted), mock.Anything).
			Return(&rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: 12}}, nil).Once()

		cache := &countingInvalidator{}
		svc := NewCatalogService(CatalogServiceParams{Repo: &fakeCatalogRepo{}, Inserter: inserter, Cache: cache})

		require.NoError(t, svc.DeleteTopic(context.Background(), 4))
		assert.Equal(t, int32(1), cache.calls.Load())
		inserter.AssertExpectations(t)
	})

	t.Run("enqueue failure is not fatal", func(t *testing.T) {
		inserter := new(MockJobInserter)
		inserter.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("queue down"))

		svc := NewCatalogService(CatalogServiceParams{Repo: &fakeCatalogRepo{}, Inserter: inserter})

		require.NoError(t, svc.DeleteTopic(context.Background(), 4))
	})
}

func TestActivityService_Log(t *testing.T) {
	topic := int64(3)

	t.Run("valid event", func(t *testing.T) {
		repo := &fakeActivityRepo{}
		svc := NewActivityService(repo, nil, nil)

		_, err := svc.Log(context.Background(), &models.CreateActivityEventRequest{
			UserID: 1, Kind: "viewed_expert_content", TopicID: &topic,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, repo.calls)
	})

	tests := []struct {
		name string
		req  models.CreateActivityEventRequest
	}{
		{"unknown kind", models.CreateActivityEventRequest{UserID: 1, Kind: "clicked"}},
		{"non-positive user", models.CreateActivityEventRequest{UserID: 0, Kind: "start_bot"}},
		{"non-positive topic", models.CreateActivityEventRequest{UserID: 1, Kind: "subscribe", TopicID: new(int64)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeActivityRepo{}

			_, err := NewActivityService(repo, nil, nil).Log(context.Background(), &tt.req)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Zero(t, repo.calls)
		})
	}
}

type fakeActivityRepo struct {
	calls int
}

func (f *fakeActivityRepo) Create(_ context.Context, req *models.CreateActivityEventRequest) (*models.ActivityEvent, error) {
	f.calls++

	return &models.ActivityEvent{ID: 1, UserID: req.UserID, TopicID: req.TopicID, Kind: models.ActivityKind(req.Kind)}, nil
}
