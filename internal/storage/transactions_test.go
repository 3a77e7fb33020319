package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGetTransaction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	account := createTestAccount(t, store, "Checking", "0")
	txn := newTestTransaction("Groceries", "123.45", date(2024, 2, 29))
	txn.AccountID = &account.ID
	txn.PaymentMethod = "debit"
	txn.RecurrenceDay = model.IntPtr(29)
	txn.IsFixed = true

	require.NoError(t, store.InsertTransaction(ctx, txn))
	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, 1, txn.Version)

	got, err := store.GetTransaction(ctx, testUser, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)
	assert.True(t, decimal.RequireFromString("123.45").Equal(got.Amount))
	assert.Equal(t, model.TypeExpense, got.Type)
	assert.Equal(t, "2024-02-29", model.FormatDate(got.TransactionDate))
	assert.Equal(t, "debit", got.PaymentMethod)
	require.NotNil(t, got.AccountID)
	assert.Equal(t, account.ID, *got.AccountID)
	require.NotNil(t, got.RecurrenceDay)
	assert.Equal(t, 29, *got.RecurrenceDay)
	require.NotNil(t, got.ReferenceMonth, "templates carry their own month")
	assert.Equal(t, "2024-02", got.ReferenceMonth.String())
	assert.Nil(t, got.ParentTransactionID)
	assert.True(t, got.IsTemplate())
}

func TestGetTransaction_ScopedToUser(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := newTestTransaction("Private", "1", date(2024, 1, 1))
	require.NoError(t, store.InsertTransaction(ctx, txn))

	_, err := store.GetTransaction(ctx, "someone-else", txn.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestInsertTransaction_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		mutate func(*model.Transaction)
		name   string
		field  string
	}{
		{name: "empty title", field: "title", mutate: func(txn *model.Transaction) { txn.Title = " " }},
		{name: "negative amount", field: "amount", mutate: func(txn *model.Transaction) { txn.Amount = decimal.NewFromInt(-1) }},
		{name: "unknown type", field: "type", mutate: func(txn *model.Transaction) { txn.Type = "refund" }},
		{name: "missing date", field: "transaction_date", mutate: func(txn *model.Transaction) { txn.TransactionDate = time.Time{} }},
		{name: "recurrence day", field: "recurrence_day", mutate: func(txn *model.Transaction) { txn.RecurrenceDay = model.IntPtr(32) }},
		{name: "installments", field: "installments", mutate: func(txn *model.Transaction) {
			txn.IsInstallment = true
			txn.CurrentInstallment = model.IntPtr(4)
			txn.TotalInstallments = model.IntPtr(3)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := newTestTransaction("Valid", "1", date(2024, 1, 1))
			tt.mutate(txn)

			err := store.InsertTransaction(ctx, txn)
			require.ErrorIs(t, err, common.ErrValidation)

			var vErr *common.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestListTransactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	for _, d := range []time.Time{date(2024, 2, 28), date(2024, 3, 1), date(2024, 3, 15), date(2024, 3, 31), date(2024, 4, 1)} {
		require.NoError(t, store.InsertTransaction(ctx, newTestTransaction("Row", "1", d)))
	}

	march := model.NewMonth(2024, time.March)
	page, err := store.ListTransactions(ctx, testUser, service.TransactionFilter{
		StartDate: march.FirstDate(testLoc),
		EndDate:   march.LastDate(testLoc),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Transactions, 3)
	assert.Equal(t, "2024-03-31", model.FormatDate(page.Transactions[0].TransactionDate), "newest first")
	assert.Equal(t, "2024-03-01", model.FormatDate(page.Transactions[2].TransactionDate))
	assert.Equal(t, DefaultPageSize, page.Limit)

	t.Run("paginates", func(t *testing.T) {
		page, err := store.ListTransactions(ctx, testUser, service.TransactionFilter{
			StartDate: march.FirstDate(testLoc),
			EndDate:   march.LastDate(testLoc),
			Limit:     2,
			Offset:    2,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Transactions, 1)
		assert.Equal(t, "2024-03-01", model.FormatDate(page.Transactions[0].TransactionDate))
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		_, err := store.ListTransactions(ctx, testUser, service.TransactionFilter{
			StartDate: date(2024, 4, 1),
			EndDate:   date(2024, 3, 1),
		})
		assert.ErrorIs(t, err, ErrInvalidDateRange)
	})

	t.Run("other users see nothing", func(t *testing.T) {
		page, err := store.ListTransactions(ctx, "someone-else", service.TransactionFilter{})
		require.NoError(t, err)
		assert.Zero(t, page.Total)
		assert.Empty(t, page.Transactions)
	})
}

func TestUpdateIfVersion(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := newTestTransaction("Rent", "1000", date(2024, 1, 5))
	require.NoError(t, store.InsertTransaction(ctx, txn))

	version := txn.Version
	for i := 0; i < 3; i++ {
		amount := decimal.NewFromInt(int64(1000 + i + 1))
		newVersion, err := store.UpdateIfVersion(ctx, testUser, txn.ID, version, model.TransactionPatch{Amount: &amount})
		require.NoError(t, err)
		assert.Equal(t, version+1, newVersion)
		version = newVersion
	}
	assert.Equal(t, txn.Version+3, version)

	t.Run("stale version is rejected and leaves the row unchanged", func(t *testing.T) {
		title := "Overwritten"
		_, err := store.UpdateIfVersion(ctx, testUser, txn.ID, txn.Version, model.TransactionPatch{Title: &title})
		require.ErrorIs(t, err, common.ErrVersionConflict)

		var conflict *common.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, txn.ID, conflict.TransactionID)

		got, err := store.GetTransaction(ctx, testUser, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, "Rent", got.Title)
		assert.Equal(t, version, got.Version)
		assert.True(t, decimal.NewFromInt(1003).Equal(got.Amount))
	})

	t.Run("missing row is not found", func(t *testing.T) {
		title := "Ghost"
		_, err := store.UpdateIfVersion(ctx, testUser, "missing", 1, model.TransactionPatch{Title: &title})
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("empty patch is a validation error", func(t *testing.T) {
		_, err := store.UpdateIfVersion(ctx, testUser, txn.ID, version, model.TransactionPatch{})
		assert.ErrorIs(t, err, common.ErrEmptyPatch)
	})

	t.Run("clear account", func(t *testing.T) {
		account := createTestAccount(t, store, "Wallet", "0")
		v, err := store.UpdateIfVersion(ctx, testUser, txn.ID, version, model.TransactionPatch{AccountID: &account.ID})
		require.NoError(t, err)

		v, err = store.UpdateIfVersion(ctx, testUser, txn.ID, v, model.TransactionPatch{ClearAccount: true})
		require.NoError(t, err)

		got, err := store.GetTransaction(ctx, testUser, txn.ID)
		require.NoError(t, err)
		assert.Nil(t, got.AccountID)
		assert.Equal(t, v, got.Version)
		version = v
	})
}

func TestUpdateTransactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first := newTestTransaction("A", "1", date(2024, 1, 1))
	second := newTestTransaction("B", "1", date(2024, 1, 2))
	require.NoError(t, store.InsertTransaction(ctx, first))
	require.NoError(t, store.InsertTransaction(ctx, second))

	category := "Housing"
	n, err := store.UpdateTransactions(ctx, testUser, []string{first.ID, second.ID, "gone"}, model.TransactionPatch{Category: &category})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{first.ID, second.ID} {
		got, err := store.GetTransaction(ctx, testUser, id)
		require.NoError(t, err)
		assert.Equal(t, "Housing", got.Category)
		assert.Equal(t, 2, got.Version)
	}
}

func TestSetPaid(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := newTestTransaction("Power", "80", date(2024, 1, 10))
	require.NoError(t, store.InsertTransaction(ctx, txn))

	v, err := store.SetPaid(ctx, testUser, txn.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = store.SetPaid(ctx, testUser, txn.ID, true)
	assert.ErrorIs(t, err, common.ErrAlreadyPaid)

	v, err = store.SetPaid(ctx, testUser, txn.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = store.SetPaid(ctx, testUser, txn.ID, false)
	assert.ErrorIs(t, err, common.ErrNotPaid)

	_, err = store.SetPaid(ctx, testUser, "missing", true)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteTransaction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := newTestTransaction("Delete me", "1", date(2024, 1, 1))
	require.NoError(t, store.InsertTransaction(ctx, txn))

	require.NoError(t, store.DeleteTransaction(ctx, testUser, txn.ID))
	assert.ErrorIs(t, store.DeleteTransaction(ctx, testUser, txn.ID), common.ErrNotFound)
}

func TestListSettledByAccount(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	account := createTestAccount(t, store, "Checking", "0")
	for i, paid := range []bool{true, false, true} {
		txn := newTestTransaction("Row", "10", date(2024, 1, i+1))
		txn.AccountID = &account.ID
		txn.IsPaid = paid
		require.NoError(t, store.InsertTransaction(ctx, txn))
	}
	require.NoError(t, store.InsertTransaction(ctx, newTestTransaction("Unlinked", "10", date(2024, 1, 9))))

	settled, err := store.ListSettledByAccount(ctx, testUser, account.ID)
	require.NoError(t, err)
	assert.Len(t, settled, 2)

	count, err := store.CountTransactionsByAccount(ctx, testUser, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
