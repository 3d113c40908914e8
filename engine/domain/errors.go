package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying pipeline failures.
var (
	// ErrInvalidInput marks a caller error (empty question). Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRecordMalformed marks a record that cannot be embedded. Skipped
	// during ingestion, never aborts a batch.
	ErrRecordMalformed = errors.New("record malformed")
	// ErrDimensionMismatch marks a vector whose length does not match the
	// collection's configured dimension. Rejected before reaching the store.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrRetrievalFailed covers embed/search failures at query time.
	ErrRetrievalFailed = errors.New("retrieval failed")
	// ErrGenerationFailed covers completion failures at query time.
	ErrGenerationFailed = errors.New("generation failed")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// ValidateMovie checks that a record carries the fields the embedding input
// depends on.
func ValidateMovie(m Movie) error {
	if m.ID == "" {
		return NewValidationError("id", m.ID, ErrRecordMalformed)
	}
	if m.Title == "" {
		return NewValidationError("title", m.Title, ErrRecordMalformed)
	}
	return nil
}
