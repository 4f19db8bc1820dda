/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Validation errors - rejected before any mutation, state unchanged
  2. Insufficient stock - sell/move beyond a location's quantity
  3. Persistence errors - write failed AFTER the in-memory change applied
  4. Corrupt state - persisted document unreadable on load

USAGE:
  res, err := rec.Sell(ctx, "vault", qty, cash, "")
  var short *ledger.InsufficientStockError
  if errors.As(err, &short) {
      fmt.Printf("only %s g left at %s\n", short.Available, short.Location)
  }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed commands (non-positive
	// quantity, identical move endpoints, negative counts...).
	ErrValidation = errors.New("invalid command")

	// ErrUnknownLocation is returned when a command names a location outside
	// the configured set. It is also a validation error.
	ErrUnknownLocation = errors.New("unknown location")

	// ErrInsufficientStock is returned when a sell or move exceeds the stock
	// held at the source location.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrNoChanges is returned by transitions that would not change anything.
	// The Recorder turns it into an unchanged Result, never into a failure.
	ErrNoChanges = errors.New("no changes needed")

	// ErrPersistence is returned when the state advanced in memory but could
	// not be written to durable storage.
	ErrPersistence = errors.New("persistence failed")

	// ErrCorruptState is returned when the persisted document cannot be read.
	ErrCorruptState = errors.New("corrupt persisted state")

	// ErrNotFound is returned by a Store that holds no document yet.
	ErrNotFound = errors.New("no persisted state")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which input was rejected and why.
type ValidationError struct {
	Field   string
	Message string
	Err     error // optional, more specific sentinel
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func unknownLocation(field string, loc Location) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("unknown location %q", loc),
		Err:     ErrUnknownLocation,
	}
}

// InsufficientStockError names the location and the shortfall.
type InsufficientStockError struct {
	Location  Location
	Available decimal.Decimal
	Requested decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock at %s: available %s g, requested %s g, short by %s g",
		e.Location.Title(), e.Available.StringFixed(2), e.Requested.StringFixed(2), e.Shortfall.StringFixed(2))
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// PersistenceError reports a failed durable write. Result holds the change
// that was already applied in memory and may not survive a restart.
type PersistenceError struct {
	Op     string
	Err    error
	Result Result
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: change applied but not saved, it may be lost on restart: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// CorruptStateError reports an unreadable persisted document.
type CorruptStateError struct {
	Source string
	Err    error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt ledger state in %s: %v", e.Source, e.Err)
}

func (e *CorruptStateError) Unwrap() []error {
	return []error{ErrCorruptState, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the command was rejected before any change.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInsufficientStock)
}

// IsPersistenceError returns true if the change applied but was not saved.
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistence)
}
