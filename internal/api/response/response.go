// Package response writes JSON bodies and RFC 7807 problem responses.
package response

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Problem types for failures a client can act on. Everything else is about:blank.
const (
	ProblemTypeRecommendationUnavailable = "urn:expertshelf:problem:recommendation-unavailable"
	ProblemTypeRebuildNotEnqueued        = "urn:expertshelf:problem:rebuild-not-enqueued"
	ProblemTypeBodyTooLarge              = "urn:expertshelf:problem:body-too-large"
)

// ErrorDetail represents a single error detail in RFC 7807 Problem Details
type ErrorDetail struct {
	Location string      `json:"location,omitempty"`
	Message  string      `json:"message,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details error response.
// RetryAfter is not serialized; RespondProblem sends it as the Retry-After header.
type ProblemDetails struct {
	Type       string        `json:"type,omitempty"`
	Title      string        `json:"title"`
	Status     int           `json:"status"`
	Detail     string        `json:"detail,omitempty"`
	Instance   string        `json:"instance,omitempty"`
	Errors     []ErrorDetail `json:"errors,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

// RespondProblem writes problem. An empty Type becomes about:blank and an empty Title the status text.
// A positive RetryAfter is rounded up to whole seconds.
func RespondProblem(w http.ResponseWriter, problem ProblemDetails) {
	if problem.Type == "" {
		problem.Type = "about:blank"
	}

	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}

	if problem.RetryAfter > 0 {
		secs := int64(math.Ceil(problem.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// RespondError writes an RFC 7807 Problem Details error response
func RespondError(w http.ResponseWriter, statusCode int, title string, detail string) {
	RespondProblem(w, ProblemDetails{Title: title, Status: statusCode, Detail: detail})
}

// RespondBadRequest writes a 400 Bad Request error response
func RespondBadRequest(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusBadRequest, "Bad Request", detail)
}

// RespondUnauthorized writes a 401 Unauthorized error response
func RespondUnauthorized(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// RespondNotFound writes a 404 Not Found error response
func RespondNotFound(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusNotFound, "Not Found", detail)
}

// RespondInternalServerError writes a 500 Internal Server Error response
func RespondInternalServerError(w http.ResponseWriter, detail string) {
	RespondError(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// RespondRecommendationUnavailable writes a 503 telling the client to retry after retryAfter.
// The topic index or its stores are down or still building.
func RespondRecommendationUnavailable(w http.ResponseWriter, detail string, retryAfter time.Duration) {
	RespondProblem(w, ProblemDetails{
		Type:       ProblemTypeRecommendationUnavailable,
		Title:      "Recommendations Unavailable",
		Status:     http.StatusServiceUnavailable,
		Detail:     detail,
		RetryAfter: retryAfter,
	})
}

// RespondRebuildNotEnqueued writes a 503 for an invalidation whose rebuild job was not queued.
// The local index is already dropped; retrying only re-requests the job.
func RespondRebuildNotEnqueued(w http.ResponseWriter, detail string) {
	RespondProblem(w, ProblemDetails{
		Type:   ProblemTypeRebuildNotEnqueued,
		Title:  "Rebuild Not Enqueued",
		Status: http.StatusServiceUnavailable,
		Detail: detail,
	})
}

// RespondBodyTooLarge writes a 413 naming the byte limit.
func RespondBodyTooLarge(w http.ResponseWriter, limit int64) {
	RespondProblem(w, ProblemDetails{
		Type:   ProblemTypeBodyTooLarge,
		Title:  "Request Entity Too Large",
		Status: http.StatusRequestEntityTooLarge,
		Detail: fmt.Sprintf("request body exceeds the %d byte limit", limit),
		Errors: []ErrorDetail{{Location: "body", Message: "too large", Value: limit}},
	})
}

// RespondJSON writes a JSON response directly without wrapping
func RespondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
