package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("invalid input")
	ErrIneligible  = errors.New("not eligible")
	ErrPersistence = errors.New("persistence failure")
	ErrForbidden   = errors.New("forbidden")
)

type AppError struct {
	Err     error  // sentinel category (ErrNotFound, ErrIneligible, ...)
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Ineligible marks a message that failed the engagement classifier.
// This is a normal outcome, not a failure; callers check with
// errors.Is(err, ErrIneligible) and continue without logging an error.
func Ineligible(reason string) *AppError {
	return &AppError{
		Err:     ErrIneligible,
		Message: reason,
	}
}

// Persistence wraps a storage failure. The award that triggered it was not
// applied: no partial counter update, no orphaned log entry.
func Persistence(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: fmt.Sprintf("%s: %v", op, cause),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}
