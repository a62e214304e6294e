// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrStoreUnavailable  = errors.New("record store unavailable")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Ledger errors.
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrAlreadyInitialized = errors.New("initial balance already set")
	ErrNotInitialized     = errors.New("ledger not initialized")
	ErrReference          = errors.New("dangling reference")
	ErrTransferFailed     = errors.New("transfer failed")

	// Snapshot errors.
	ErrImportValidation = errors.New("invalid snapshot")
	ErrImportFailed     = errors.New("import failed")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError names the input field that was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError reports a sale larger than the held quantity.
type InsufficientStockError struct {
	Item      string
	Held      decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %q: held %s kg, requested %s kg",
		e.Item, e.Held.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ReferenceError reports an id that does not resolve to an existing record.
type ReferenceError struct {
	Kind string
	ID   string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.ID)
}

func (e *ReferenceError) Unwrap() error {
	return ErrReference
}

// TransferError reports a transfer that could not be completed. Compensated is
// true when a leg that had already been written was undone.
type TransferError struct {
	Err         error
	Stage       string
	Compensated bool
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("%v at %s", ErrTransferFailed, e.Stage)
	if e.Compensated {
		msg += " (first leg undone)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransferFailed}
	}
	return []error{ErrTransferFailed, e.Err}
}

// ImportValidationError reports a malformed snapshot. Nothing was written.
type ImportValidationError struct {
	Collection string
	Reason     string
	Index      int // -1 when the problem is not tied to a record
}

func (e *ImportValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%v: %s[%d]: %s", ErrImportValidation, e.Collection, e.Index, e.Reason)
	}
	if e.Collection != "" {
		return fmt.Sprintf("%v: %s: %s", ErrImportValidation, e.Collection, e.Reason)
	}
	return fmt.Sprintf("%v: %s", ErrImportValidation, e.Reason)
}

func (e *ImportValidationError) Unwrap() error {
	return ErrImportValidation
}

// ImportError reports a failure while rewriting collections. Replaced lists the
// collections confirmed to hold the snapshot's records; Failed is the one being
// written when the error happened.
type ImportError struct {
	Err      error
	Failed   string
	Replaced []string
}

func (e *ImportError) Error() string {
	replaced := "none"
	if len(e.Replaced) > 0 {
		replaced = strings.Join(e.Replaced, ", ")
	}
	return fmt.Sprintf("%v while replacing %s (replaced: %s): %v", ErrImportFailed, e.Failed, replaced, e.Err)
}

func (e *ImportError) Unwrap() []error {
	return []error{ErrImportFailed, e.Err}
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry by the caller.
// The ledger itself never retries.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
