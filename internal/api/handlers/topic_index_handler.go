package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/expertshelf/hub/internal/api/response"
	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
)

// TopicIndex exposes the in-memory topic index state.
type TopicIndex interface {
	Status() models.TopicIndexStatus
	Invalidate()
}

// CatalogService defines the catalog operations reachable over HTTP.
type CatalogService interface {
	RequestRebuild(ctx context.Context, reason string) error
	DeleteTopic(ctx context.Context, id int64) error
}

// InvalidateResponse is the body of POST /v1/admin/topic-index/invalidate.
type InvalidateResponse struct {
	Invalidated     bool `json:"invalidated"`
	RebuildEnqueued bool `json:"rebuild_enqueued"`
}

const rebuildReasonAdmin = "admin"

// TopicIndexHandler handles admin requests for the topic index and the topic catalog.
type TopicIndexHandler struct {
	index   TopicIndex
	catalog CatalogService
}

// NewTopicIndexHandler creates a new topic index handler.
func NewTopicIndexHandler(index TopicIndex, catalog CatalogService) *TopicIndexHandler {
	return &TopicIndexHandler{index: index, catalog: catalog}
}

// Status handles GET /v1/admin/topic-index
func (h *TopicIndexHandler) Status(w http.ResponseWriter, _ *http.Request) {
	response.RespondJSON(w, http.StatusOK, h.index.Status())
}

// Invalidate handles POST /v1/admin/topic-index/invalidate. With rebuild=true a rebuild job
// is also enqueued so every replica's worker pool picks it up.
func (h *TopicIndexHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	rebuild := false

	if raw := r.URL.Query().Get("rebuild"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.RespondBadRequest(w, "rebuild must be a boolean")

			return
		}

		rebuild = v
	}

	if !rebuild {
		h.index.Invalidate()
		response.RespondJSON(w, http.StatusAccepted, InvalidateResponse{Invalidated: true})

		return
	}

	if err := h.catalog.RequestRebuild(r.Context(), rebuildReasonAdmin); err != nil {
		slog.ErrorContext(r.Context(), "enqueue topic index rebuild failed", "error", err)
		response.RespondRebuildNotEnqueued(w, "Index invalidated but the rebuild job could not be enqueued")

		return
	}

	response.RespondJSON(w, http.StatusAccepted, InvalidateResponse{Invalidated: true, RebuildEnqueued: true})
}

// DeleteTopic handles DELETE /v1/topics/{id}
func (h *TopicIndexHandler) DeleteTopic(w http.ResponseWriter, r *http.Request) {
	id, err := parsePositiveID(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "id "+err.Error())

		return
	}

	if err := h.catalog.DeleteTopic(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Topic not found")

			return
		}

		slog.ErrorContext(r.Context(), "delete topic failed", "topic_id", id, "error", err)
		response.RespondInternalServerError(w, "An unexpected error occurred")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
