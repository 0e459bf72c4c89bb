package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/expertshelf/hub/internal/api/response"
	"github.com/expertshelf/hub/internal/api/validation"
	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
)

// ActivityService defines the interface for the activity log.
type ActivityService interface {
	Log(ctx context.Context, req *models.CreateActivityEventRequest) (*models.ActivityEvent, error)
}

// ActivityHandler handles HTTP requests for activity events.
type ActivityHandler struct {
	service ActivityService
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(service ActivityService) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// Create handles POST /v1/activity
func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateActivityEventRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	event, err := h.service.Log(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			response.RespondBadRequest(w, err.Error())
		case errors.Is(err, apperrors.ErrNotFound):
			response.RespondNotFound(w, "Topic not found")
		default:
			slog.ErrorContext(r.Context(), "log activity failed", "user_id", req.UserID, "error", err)
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}

		return
	}

	response.RespondJSON(w, http.StatusCreated, event)
}
