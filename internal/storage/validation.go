package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidDateRange = errors.New("start date must be before end date")
	ErrNegativeAmount   = errors.New("amount cannot be negative")
	ErrRequired         = errors.New("value is required")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// ValidateTransaction checks a full transaction before it is inserted.
func ValidateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if err := validateString(txn.UserID, "user_id"); err != nil {
		return common.NewValidationError("user_id", ErrRequired)
	}
	if strings.TrimSpace(txn.Title) == "" {
		return common.NewValidationError("title", ErrRequired)
	}
	if txn.Amount.IsNegative() {
		return common.NewValidationError("amount", ErrNegativeAmount)
	}
	if !txn.Type.Valid() {
		return common.NewValidationError("type", fmt.Errorf("unknown type %q", txn.Type))
	}
	if txn.TransactionDate.IsZero() {
		return common.NewValidationError("transaction_date", ErrRequired)
	}
	if err := validateRecurrenceDay(txn.RecurrenceDay); err != nil {
		return err
	}
	if txn.AccountID != nil && strings.TrimSpace(*txn.AccountID) == "" {
		return common.NewValidationError("account_id", ErrEmptyString)
	}
	if txn.IsInstallment {
		return validateInstallments(txn.CurrentInstallment, txn.TotalInstallments)
	}
	return nil
}

// ValidatePatch checks the fields a patch would write.
func ValidatePatch(patch model.TransactionPatch) error {
	if patch.IsEmpty() {
		return common.NewValidationError("patch", common.ErrEmptyPatch)
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return common.NewValidationError("title", ErrRequired)
	}
	if patch.Amount != nil && patch.Amount.IsNegative() {
		return common.NewValidationError("amount", ErrNegativeAmount)
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return common.NewValidationError("type", fmt.Errorf("unknown type %q", *patch.Type))
	}
	if patch.TransactionDate != nil && patch.TransactionDate.IsZero() {
		return common.NewValidationError("transaction_date", ErrRequired)
	}
	if patch.AccountID != nil && !patch.ClearAccount && strings.TrimSpace(*patch.AccountID) == "" {
		return common.NewValidationError("account_id", ErrEmptyString)
	}
	if err := validateRecurrenceDay(patch.RecurrenceDay); err != nil {
		return err
	}
	if patch.CurrentInstallment != nil && patch.TotalInstallments != nil {
		return validateInstallments(patch.CurrentInstallment, patch.TotalInstallments)
	}
	return nil
}

// ValidateAccount checks an account before it is inserted.
func ValidateAccount(account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if strings.TrimSpace(account.UserID) == "" {
		return common.NewValidationError("user_id", ErrRequired)
	}
	if strings.TrimSpace(account.Name) == "" {
		return common.NewValidationError("name", ErrRequired)
	}
	return nil
}

func validateRecurrenceDay(day *int) error {
	if day != nil && (*day < 1 || *day > 31) {
		return common.NewValidationError("recurrence_day", fmt.Errorf("%d is outside 1-31", *day))
	}
	return nil
}

func validateInstallments(current, total *int) error {
	if current == nil || total == nil {
		return common.NewValidationError("installments", ErrRequired)
	}
	if *current < 1 || *total < 1 || *current > *total {
		return common.NewValidationError("installments",
			fmt.Errorf("installment %d of %d is out of range", *current, *total))
	}
	return nil
}
