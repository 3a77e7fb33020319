// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Validation errors.
	ErrValidation    = errors.New("validation failed")
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrSameAccount   = errors.New("source and destination accounts must differ")
	ErrEmptyPatch    = errors.New("nothing to update")

	// Conflict errors.
	ErrVersionConflict = errors.New("transaction was modified elsewhere")
	ErrAlreadyPaid     = errors.New("transaction is already paid")
	ErrNotPaid         = errors.New("transaction is not paid")

	// Referential integrity errors.
	ErrAccountInUse = errors.New("account is still referenced by transactions")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports the field that rejected an input before any write.
type ValidationError struct {
	Err   error
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// NewValidationError wraps err as a validation failure of field.
func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ConflictError is returned when a version-gated update matched no row
// because another writer already advanced the version.
type ConflictError struct {
	TransactionID   string
	ExpectedVersion int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: transaction %s is no longer at version %d",
		ErrVersionConflict, e.TransactionID, e.ExpectedVersion)
}

func (e *ConflictError) Unwrap() error {
	return ErrVersionConflict
}

// AccountInUseError blocks deleting an account that transactions still point at.
type AccountInUseError struct {
	AccountID string
	Count     int
}

func (e *AccountInUseError) Error() string {
	return fmt.Sprintf("%v: account %s has %d transaction(s)", ErrAccountInUse, e.AccountID, e.Count)
}

func (e *AccountInUseError) Unwrap() error {
	return ErrAccountInUse
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

// IsConflict reports whether err means the caller must reload state before acting again.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrNotPaid)
}

// IsRetryable determines if an error should trigger a retry.
// Conflicts and validation failures never are.
func IsRetryable(err error) bool {
	if err == nil || IsConflict(err) || errors.Is(err, ErrValidation) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
