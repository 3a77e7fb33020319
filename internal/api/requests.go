package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// transactionBody is the wire shape of a new transaction. Dates travel as
// YYYY-MM-DD calendar dates.
type transactionBody struct {
	Amount             decimal.Decimal       `json:"amount"`
	AccountID          *string               `json:"account_id"`
	RecurrenceDay      *int                  `json:"recurrence_day"`
	CurrentInstallment *int                  `json:"current_installment"`
	TotalInstallments  *int                  `json:"total_installments"`
	Title              string                `json:"title"`
	Type               model.TransactionType `json:"type"`
	Category           string                `json:"category"`
	PaymentMethod      string                `json:"payment_method"`
	TransactionDate    string                `json:"transaction_date"`
	IsFixed            bool                  `json:"is_fixed"`
	IsPaid             bool                  `json:"is_paid"`
	IsInstallment      bool                  `json:"is_installment"`
}

func (b transactionBody) draft(userID string, loc *time.Location) (model.Transaction, error) {
	date, err := parseDate(b.TransactionDate, loc)
	if err != nil {
		return model.Transaction{}, err
	}
	return model.Transaction{
		UserID:             userID,
		Title:              b.Title,
		Amount:             b.Amount,
		Type:               b.Type,
		Category:           b.Category,
		PaymentMethod:      b.PaymentMethod,
		TransactionDate:    date,
		AccountID:          b.AccountID,
		RecurrenceDay:      b.RecurrenceDay,
		CurrentInstallment: b.CurrentInstallment,
		TotalInstallments:  b.TotalInstallments,
		IsFixed:            b.IsFixed,
		IsPaid:             b.IsPaid,
		IsInstallment:      b.IsInstallment,
	}, nil
}

// patchBody mirrors model.TransactionPatch with a calendar date.
type patchBody struct {
	Title              *string                `json:"title"`
	Amount             *decimal.Decimal       `json:"amount"`
	Type               *model.TransactionType `json:"type"`
	Category           *string                `json:"category"`
	PaymentMethod      *string                `json:"payment_method"`
	AccountID          *string                `json:"account_id"`
	TransactionDate    *string                `json:"transaction_date"`
	RecurrenceDay      *int                   `json:"recurrence_day"`
	IsFixed            *bool                  `json:"is_fixed"`
	IsInstallment      *bool                  `json:"is_installment"`
	CurrentInstallment *int                   `json:"current_installment"`
	TotalInstallments  *int                   `json:"total_installments"`
	ClearAccount       bool                   `json:"clear_account"`
}

func (b patchBody) patch(loc *time.Location) (model.TransactionPatch, error) {
	p := model.TransactionPatch{
		Title:              b.Title,
		Amount:             b.Amount,
		Type:               b.Type,
		Category:           b.Category,
		PaymentMethod:      b.PaymentMethod,
		AccountID:          b.AccountID,
		RecurrenceDay:      b.RecurrenceDay,
		IsFixed:            b.IsFixed,
		IsInstallment:      b.IsInstallment,
		CurrentInstallment: b.CurrentInstallment,
		TotalInstallments:  b.TotalInstallments,
		ClearAccount:       b.ClearAccount,
	}
	if b.TransactionDate != nil {
		date, err := parseDate(*b.TransactionDate, loc)
		if err != nil {
			return p, err
		}
		p.TransactionDate = &date
	}
	return p, nil
}

type editBody struct {
	Patch   patchBody         `json:"patch"`
	Version int               `json:"version"`
	Mode    model.CascadeMode `json:"mode"`
}

func (b editBody) request(userID, id string, loc *time.Location) (ledger.EditRequest, error) {
	patch, err := b.Patch.patch(loc)
	if err != nil {
		return ledger.EditRequest{}, err
	}
	return ledger.EditRequest{
		UserID:        userID,
		TransactionID: id,
		Version:       b.Version,
		Mode:          b.Mode,
		Patch:         patch,
	}, nil
}

type accountBody struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Name           string          `json:"name"`
	Color          string          `json:"color"`
	Icon           string          `json:"icon"`
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, common.NewValidationError("transaction_date", fmt.Errorf("date is required"))
	}
	date, err := model.ParseDate(s, loc)
	if err != nil {
		return time.Time{}, common.NewValidationError("transaction_date", err)
	}
	return date, nil
}

// decode reads a JSON body into v and reports a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
