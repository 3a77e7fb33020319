package cli

import (
	"testing"

	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransactionTable(t *testing.T) {
	txns := []model.Transaction{
		{ID: "t1", Title: "Rent", Amount: decimal.NewFromInt(500), Type: model.TypeExpense, AccountID: model.StringPtr("a1"), IsFixed: true, Version: 2},
		{ID: "t2", Title: "Salary", Amount: decimal.RequireFromString("2500.5"), Type: model.TypeIncome, IsPaid: true, Version: 1},
	}

	out := TransactionTable(txns, map[string]string{"a1": "Checking"}, map[string]bool{"t2": true})

	for _, want := range []string{"Rent", "Salary", "-500.00", "+2500.50", "Checking", "t1", "t2"} {
		assert.Contains(t, out, want)
	}
}

func TestAccountTable(t *testing.T) {
	out := AccountTable([]model.Account{
		{ID: "a1", Name: "Checking", Balance: decimal.RequireFromString("-12.5")},
	})
	assert.Contains(t, out, "Checking")
	assert.Contains(t, out, "-12.50")
}

func TestFormatAmount(t *testing.T) {
	assert.Contains(t, FormatAmount(decimal.NewFromInt(3), model.TypeExpense), "-3.00")
	assert.Contains(t, FormatAmount(decimal.NewFromInt(3), model.TypeIncome), "+3.00")
}
