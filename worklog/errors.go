/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the sentinels with errors.Is and read details with
  errors.As.

ERROR CATEGORIES:
  1. Validation errors - Malformed time range, unparsable "HH:mm"
     (always raised before any mutation)
  2. Not found errors - Interval id missing or owned by another user
  3. Store errors - Persistence / transaction failure (rolled back as a whole)

SEE ALSO:
  - api/handlers.go: Maps these to HTTP status codes
*/
package worklog

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for any malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTimeFormat is returned when a clock string is not "HH:mm".
	ErrInvalidTimeFormat = errors.New("invalid time format")

	// ErrNotFound is returned when an interval or punch does not exist for the user.
	ErrNotFound = errors.New("not found")

	// ErrStore is returned when the store fails. The atomic unit has been rolled back.
	ErrStore = errors.New("store failure")

	// ErrConflictResolution wraps a store failure raised while reconciling a candidate.
	ErrConflictResolution = errors.New("conflict resolution failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FormatError is returned by ParseClock for malformed "HH:mm" values.
type FormatError struct {
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid time %q: want HH:mm", e.Value)
}

// Unwrap exposes both ErrInvalidTimeFormat and ErrValidation.
func (e *FormatError) Unwrap() []error {
	return []error{ErrInvalidTimeFormat, ErrValidation}
}

type NotFoundError struct {
	Kind string // "interval", "open interval", "punch"
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// ConflictResolutionError is raised by ResolveAndApply when the store fails
// mid-reconciliation. Nothing was applied.
type ConflictResolutionError struct {
	UserID UserID
	Err    error
}

func (e *ConflictResolutionError) Error() string {
	return fmt.Sprintf("resolve intervals for %s: %v", e.UserID, e.Err)
}

func (e *ConflictResolutionError) Unwrap() []error {
	return []error{ErrConflictResolution, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// storeErr wraps err as a StoreError unless it already carries a domain
// category.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrStore) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
