// Package model defines the ledger domain types shared by storage, the engine and its surfaces.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType indicates the direction of money for a transaction.
type TransactionType string

const (
	// TypeIncome adds to the linked account balance once settled.
	TypeIncome TransactionType = "income"
	// TypeExpense subtracts from the linked account balance once settled.
	TypeExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// ParseTransactionType converts user input into a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q (expected income or expense)", s)
	}
	return t, nil
}

// Transaction is a single financial movement.
//
// A template is a fixed row without a parent. An instance is a row generated
// from a template for one month; it keeps both ParentTransactionID and
// ReferenceMonth so it stays traceable even after its date is edited.
type Transaction struct {
	TransactionDate     time.Time       `json:"transaction_date"`
	CreatedAt           time.Time       `json:"created_at"`
	Amount              decimal.Decimal `json:"amount"`
	ParentTransactionID *string         `json:"parent_transaction_id"`
	ReferenceMonth      *Month          `json:"reference_month"`
	AccountID           *string         `json:"account_id"`
	TransferID          *string         `json:"transfer_id"`
	RecurrenceDay       *int            `json:"recurrence_day"`
	CurrentInstallment  *int            `json:"current_installment"`
	TotalInstallments   *int            `json:"total_installments"`
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	Title               string          `json:"title"`
	Category            string          `json:"category"`
	PaymentMethod       string          `json:"payment_method"`
	Type                TransactionType `json:"type"`
	Version             int             `json:"version"`
	IsPaid              bool            `json:"is_paid"`
	IsFixed             bool            `json:"is_fixed"`
	IsInstallment       bool            `json:"is_installment"`
}

// IsTemplate reports whether the transaction is a recurrence template.
func (t *Transaction) IsTemplate() bool {
	return t.IsFixed && t.ParentTransactionID == nil
}

// IsInstance reports whether the transaction was generated from a template.
func (t *Transaction) IsInstance() bool {
	return t.ParentTransactionID != nil
}

// EffectiveRecurrenceDay returns the configured recurrence day, falling back
// to the day of the transaction's own date.
func (t *Transaction) EffectiveRecurrenceDay() int {
	if t.RecurrenceDay != nil {
		return *t.RecurrenceDay
	}
	return t.TransactionDate.Day()
}

// SignedAmount returns +amount for income and -amount for expense.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TypeExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Contribution is what this transaction currently adds to its account balance.
// Pending or unlinked transactions contribute nothing.
func (t *Transaction) Contribution() decimal.Decimal {
	if !t.IsPaid || t.AccountID == nil {
		return decimal.Zero
	}
	return t.SignedAmount()
}

// DuplicateKey identifies rows that look like accidental re-entries.
func (t *Transaction) DuplicateKey() string {
	return fmt.Sprintf("%s|%s|%s",
		strings.TrimSpace(t.Title),
		t.Amount.String(),
		FormatDate(t.TransactionDate))
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int {
	return &i
}
