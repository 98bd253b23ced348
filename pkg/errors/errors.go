package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies every failure the core can emit. The routing layer
// translates categories into final HTTP status codes; nothing else about an
// error is load-bearing for status selection.
type Category string

const (
	CategorySuccess     Category = "success"
	CategoryClientError Category = "client-error"
	CategoryNotFound    Category = "not-found"
	CategoryServerError Category = "server-error"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
)

// AppError is a structured application error carrying a machine-readable code,
// a user-facing message and the status category the routing layer maps to an
// HTTP status.
type AppError struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Category Category `json:"-"`
	Err      error    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not-found error describing what doesn't exist.
func NotFound(message string) *AppError {
	return &AppError{
		Code:     "NOT_FOUND",
		Message:  message,
		Category: CategoryNotFound,
		Err:      ErrNotFound,
	}
}

// InvalidInput creates a client error describing the invalid input.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:     "INVALID_INPUT",
		Message:  message,
		Category: CategoryClientError,
		Err:      ErrInvalidInput,
	}
}

// Unauthorized creates a client error for a missing or invalid bearer token.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:     "UNAUTHORIZED",
		Message:  message,
		Category: CategoryClientError,
		Err:      ErrUnauthorized,
	}
}

// Internal creates a server error wrapping the underlying cause. The message
// is a normalized textual summary safe to return to callers.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:     "INTERNAL_ERROR",
		Message:  message,
		Category: CategoryServerError,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// CategoryOf returns the status category for the given error.
func CategoryOf(err error) Category {
	if err == nil {
		return CategorySuccess
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnauthorized):
		return CategoryClientError
	default:
		return CategoryServerError
	}
}

// HTTPStatus returns the HTTP status code for the given error's category.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategorySuccess:
		return http.StatusOK
	case CategoryClientError:
		if errors.Is(err, ErrUnauthorized) {
			return http.StatusUnauthorized
		}
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
