package types

import (
	"errors"
	"fmt"
)

// Domain errors shared across packages
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyContent = errors.New("content cannot be empty")

	// Search result errors
	ErrInvalidResultID       = errors.New("invalid result ID")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrInvalidSimilarity     = errors.New("similarity must be between 0 and 1")
	ErrMissingSource         = errors.New("result source is required")
)

// ValidationError reports a request field that failed validation before any
// query was issued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match validation failures with errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
