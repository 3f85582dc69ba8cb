package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("already exists")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError reports a malformed or out-of-range input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a *ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DuplicateError is returned when a uniqueness constraint would be violated.
type DuplicateError struct {
	Kind string
	Key  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q %s", e.Kind, e.Key, ErrDuplicate)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// Unavailable wraps a transient storage failure so callers can match ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
