package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/expertshelf/hub/internal/api/response"
	"github.com/expertshelf/hub/internal/api/validation"
	apperrors "github.com/expertshelf/hub/internal/errors"
	"github.com/expertshelf/hub/internal/models"
)

// recommendationRetryAfter is the Retry-After hint on 503s; most outages are an index still building.
const recommendationRetryAfter = 5 * time.Second

// RecommendationService defines the interface for recommendation business logic.
type RecommendationService interface {
	Recommend(ctx context.Context, userID int64, topK int) ([]models.RecommendationGroup, error)
}

// RecommendationsHandler handles HTTP requests for user recommendations.
type RecommendationsHandler struct {
	service RecommendationService
}

// NewRecommendationsHandler creates a new recommendations handler.
func NewRecommendationsHandler(service RecommendationService) *RecommendationsHandler {
	return &RecommendationsHandler{service: service}
}

// Get handles GET /v1/users/{user_id}/recommendations
func (h *RecommendationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := parsePositiveID(r.PathValue("user_id"))
	if err != nil {
		response.RespondBadRequest(w, "user_id "+err.Error())

		return
	}

	query := &models.RecommendationsQuery{}
	if err := validation.ValidateAndDecodeQueryParams(r, query); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	groups, err := h.service.Recommend(r.Context(), userID, query.TopK)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			response.RespondBadRequest(w, err.Error())
		case errors.Is(err, apperrors.ErrRecommendationUnavailable):
			slog.WarnContext(r.Context(), "recommendation unavailable", "user_id", userID, "error", err)
			response.RespondRecommendationUnavailable(w, "Recommendations are temporarily unavailable", recommendationRetryAfter)
		default:
			slog.ErrorContext(r.Context(), "recommend failed", "user_id", userID, "error", err)
			response.RespondInternalServerError(w, "An unexpected error occurred")
		}

		return
	}

	if groups == nil {
		groups = []models.RecommendationGroup{}
	}

	response.RespondJSON(w, http.StatusOK, models.RecommendationsResponse{
		Data:                groups,
		InsufficientHistory: len(groups) == 0,
	})
}
