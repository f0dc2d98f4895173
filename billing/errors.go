/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error kinds in one place. The API boundary maps these onto HTTP
  statuses; storage-layer error codes never leak past this package.

ERROR CATEGORIES:
  1. Validation errors - malformed setting values, bad windows
  2. Conflict errors - setting version interval overlap
  3. Not-found errors - unknown users or setting keys
  4. Degraded-data warnings - non-fatal, logged, surfaced as a flag

USAGE:
  if errors.Is(err, billing.ErrOverlap) {
      // 409 to the caller
  }
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a value does not conform to its
	// setting's declared type, or an input window is malformed.
	// Caller must fix the input; retrying is pointless.
	ErrValidation = errors.New("validation failed")

	// ErrOverlap is returned when inserting a setting version would
	// overlap an existing, non-superseded interval.
	ErrOverlap = errors.New("setting version interval overlap")

	// ErrNotFound is returned when a referenced user or setting key
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidWindow is returned when a window's end precedes its start.
	ErrInvalidWindow = errors.New("invalid window: end before start")

	// ErrStoreRequired is returned when an operation needs a store
	// capability the configured repository does not provide.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a value rejected by the setting catalog.
type ValidationError struct {
	Key    SettingKey
	Raw    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for setting %q: %s (got %q)", e.Key, e.Reason, e.Raw)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// OverlapError describes the conflicting interval.
type OverlapError struct {
	Key           SettingKey
	EffectiveFrom DateStamp
	ConflictID    VersionID
	ConflictFrom  DateStamp
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("setting %q: version effective %s overlaps existing version %s effective %s",
		e.Key, e.EffectiveFrom, e.ConflictID, e.ConflictFrom)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Kind string // "user", "setting"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DegradedDataWarning is logged (never returned as an error) when the
// membership change log is unavailable and the engine falls back to the
// current-status approximation. Results computed under it carry an
// Approximate flag so financial reports can be annotated.
type DegradedDataWarning struct {
	UserID UserID
	Window Window
}

func (w *DegradedDataWarning) String() string {
	return fmt.Sprintf("membership history unavailable for user %s over %s; using current-status approximation", w.UserID, w.Window)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidWindow)
}

// IsConflict returns true if the error should surface as a conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOverlap)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
