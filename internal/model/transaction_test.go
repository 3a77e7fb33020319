package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransaction_Contribution(t *testing.T) {
	account := StringPtr("acc-1")

	tests := []struct {
		name string
		txn  Transaction
		want string
	}{
		{
			name: "settled income adds",
			txn:  Transaction{Amount: decimal.RequireFromString("150.25"), Type: TypeIncome, IsPaid: true, AccountID: account},
			want: "150.25",
		},
		{
			name: "settled expense subtracts",
			txn:  Transaction{Amount: decimal.RequireFromString("40"), Type: TypeExpense, IsPaid: true, AccountID: account},
			want: "-40",
		},
		{
			name: "pending contributes nothing",
			txn:  Transaction{Amount: decimal.RequireFromString("40"), Type: TypeExpense, AccountID: account},
			want: "0",
		},
		{
			name: "unlinked contributes nothing",
			txn:  Transaction{Amount: decimal.RequireFromString("40"), Type: TypeIncome, IsPaid: true},
			want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tt.want).Equal(tt.txn.Contribution()),
				"got %s", tt.txn.Contribution())
		})
	}
}

func TestTransaction_EffectiveRecurrenceDay(t *testing.T) {
	txn := Transaction{TransactionDate: time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 17, txn.EffectiveRecurrenceDay())

	txn.RecurrenceDay = IntPtr(31)
	assert.Equal(t, 31, txn.EffectiveRecurrenceDay())
}

func TestTransaction_DuplicateKey(t *testing.T) {
	date := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	a := Transaction{Title: "Rent", Amount: decimal.RequireFromString("1200.00"), TransactionDate: date}
	b := Transaction{Title: "Rent ", Amount: decimal.RequireFromString("1200"), TransactionDate: date}
	c := Transaction{Title: "Rent", Amount: decimal.RequireFromString("1200"), TransactionDate: date.AddDate(0, 0, 1)}

	assert.Equal(t, a.DuplicateKey(), b.DuplicateKey())
	assert.NotEqual(t, a.DuplicateKey(), c.DuplicateKey())
}

func TestTransactionPatch_CascadeFields(t *testing.T) {
	date := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	fixed := true
	patch := TransactionPatch{
		Title:           StringPtr("Gym"),
		TransactionDate: &date,
		IsFixed:         &fixed,
		ClearAccount:    true,
	}

	cascade := patch.CascadeFields()
	assert.Equal(t, "Gym", *cascade.Title)
	assert.True(t, cascade.ClearAccount)
	assert.Nil(t, cascade.TransactionDate)
	assert.Nil(t, cascade.IsFixed)
	assert.False(t, cascade.IsEmpty())
	assert.True(t, TransactionPatch{}.IsEmpty())
}

func TestTransactionPatch_Apply(t *testing.T) {
	base := Transaction{
		Title:           "Internet",
		Amount:          decimal.RequireFromString("99.90"),
		Type:            TypeExpense,
		AccountID:       StringPtr("acc-1"),
		TransactionDate: time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC),
	}

	amount := decimal.RequireFromString("109.90")
	fixed := true
	got := TransactionPatch{Amount: &amount, AccountID: StringPtr("acc-2"), IsFixed: &fixed}.Apply(base)

	assert.True(t, amount.Equal(got.Amount))
	assert.Equal(t, "acc-2", *got.AccountID)
	assert.Equal(t, "acc-1", *base.AccountID, "apply must not mutate the original")
	assert.Equal(t, NewMonth(2024, time.January), *got.ReferenceMonth)

	cleared := TransactionPatch{ClearAccount: true, AccountID: StringPtr("acc-3")}.Apply(base)
	assert.Nil(t, cleared.AccountID)
}
