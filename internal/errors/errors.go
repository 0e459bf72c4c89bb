// Package errors defines the application error types shared by repositories, services and handlers.
package errors

import "fmt"

// ErrNotFound represents a "not found" error
// This should be used when a requested resource doesn't exist
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found
type NotFoundError struct {
	Resource string
	Message  string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return "resource not found"
}

// Is implements the error interface for error comparison
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// NewNotFoundError creates a new NotFoundError with a custom message
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// ErrValidation represents a validation error
// This should be used when client input fails validation
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field: %s", e.Field)
	}
	return "validation error"
}

// Is implements the error interface for error comparison
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError with a custom message
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ErrDataUnavailable is returned when the topic corpus or the activity log cannot be read.
// The operation is safe to retry.
var ErrDataUnavailable = &DataUnavailableError{}

// DataUnavailableError wraps a read failure of a backing store.
type DataUnavailableError struct {
	Source string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	switch {
	case e.Source != "" && e.Err != nil:
		return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
	case e.Source != "":
		return e.Source + " unavailable"
	case e.Err != nil:
		return fmt.Sprintf("data unavailable: %v", e.Err)
	default:
		return "data unavailable"
	}
}

// Is matches any *DataUnavailableError.
func (e *DataUnavailableError) Is(target error) bool {
	_, ok := target.(*DataUnavailableError)
	return ok
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// NewDataUnavailableError wraps err as a read failure of source.
func NewDataUnavailableError(source string, err error) *DataUnavailableError {
	return &DataUnavailableError{Source: source, Err: err}
}

// ErrRecommendationUnavailable is returned when recommendations could not be computed.
// It always wraps the underlying cause.
var ErrRecommendationUnavailable = &RecommendationUnavailableError{}

// RecommendationUnavailableError wraps any failure while building a recommendation.
type RecommendationUnavailableError struct {
	Err error
}

func (e *RecommendationUnavailableError) Error() string {
	if e.Err == nil {
		return "recommendation unavailable"
	}
	return fmt.Sprintf("recommendation unavailable: %v", e.Err)
}

// Is matches any *RecommendationUnavailableError.
func (e *RecommendationUnavailableError) Is(target error) bool {
	_, ok := target.(*RecommendationUnavailableError)
	return ok
}

func (e *RecommendationUnavailableError) Unwrap() error {
	return e.Err
}

// NewRecommendationUnavailableError wraps err.
func NewRecommendationUnavailableError(err error) *RecommendationUnavailableError {
	return &RecommendationUnavailableError{Err: err}
}
