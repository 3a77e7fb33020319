package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionPatch carries the fields a caller wants to change. Nil fields are
// left untouched. Settlement state and version are never patched directly.
type TransactionPatch struct {
	Title              *string          `json:"title,omitempty"`
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	Type               *TransactionType `json:"type,omitempty"`
	Category           *string          `json:"category,omitempty"`
	PaymentMethod      *string          `json:"payment_method,omitempty"`
	AccountID          *string          `json:"account_id,omitempty"`
	TransactionDate    *time.Time       `json:"transaction_date,omitempty"`
	RecurrenceDay      *int             `json:"recurrence_day,omitempty"`
	IsFixed            *bool            `json:"is_fixed,omitempty"`
	IsInstallment      *bool            `json:"is_installment,omitempty"`
	CurrentInstallment *int             `json:"current_installment,omitempty"`
	TotalInstallments  *int             `json:"total_installments,omitempty"`
	// ClearAccount unlinks the account. It wins over AccountID.
	ClearAccount bool `json:"clear_account,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Title == nil && p.Amount == nil && p.Type == nil && p.Category == nil &&
		p.PaymentMethod == nil && p.AccountID == nil && !p.ClearAccount &&
		p.TransactionDate == nil && p.RecurrenceDay == nil && p.IsFixed == nil &&
		p.IsInstallment == nil && p.CurrentInstallment == nil && p.TotalInstallments == nil
}

// CascadeFields keeps only the fields that propagate along a recurrence chain.
// Dates, settlement state and installment bookkeeping stay per row.
func (p TransactionPatch) CascadeFields() TransactionPatch {
	return TransactionPatch{
		Title:         p.Title,
		Amount:        p.Amount,
		Type:          p.Type,
		Category:      p.Category,
		PaymentMethod: p.PaymentMethod,
		AccountID:     p.AccountID,
		ClearAccount:  p.ClearAccount,
		RecurrenceDay: p.RecurrenceDay,
	}
}

// Apply returns a copy of t with the patch applied.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.PaymentMethod != nil {
		t.PaymentMethod = *p.PaymentMethod
	}
	switch {
	case p.ClearAccount:
		t.AccountID = nil
	case p.AccountID != nil:
		id := *p.AccountID
		t.AccountID = &id
	}
	if p.TransactionDate != nil {
		t.TransactionDate = *p.TransactionDate
	}
	if p.RecurrenceDay != nil {
		day := *p.RecurrenceDay
		t.RecurrenceDay = &day
	}
	if p.IsFixed != nil {
		t.IsFixed = *p.IsFixed
		if t.IsFixed && t.ReferenceMonth == nil {
			m := MonthOf(t.TransactionDate)
			t.ReferenceMonth = &m
		}
		if !t.IsFixed && t.ParentTransactionID == nil {
			t.ReferenceMonth = nil
		}
	}
	if p.IsInstallment != nil {
		t.IsInstallment = *p.IsInstallment
	}
	if p.CurrentInstallment != nil {
		n := *p.CurrentInstallment
		t.CurrentInstallment = &n
	}
	if p.TotalInstallments != nil {
		n := *p.TotalInstallments
		t.TotalInstallments = &n
	}
	return t
}
