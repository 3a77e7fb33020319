package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/Veraticus/ledger-must-balance/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteTransaction_TemplateCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	checking := h.db.CreateAccount("Checking", "0")
	template, instances := h.chain(t, testutil.NewTransaction("Rent").Amount("500").Account(checking.ID))
	_, err := h.ledger.Pay(ctx, user, instances[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "-500", h.db.Balance(checking.ID).String())

	result, err := h.ledger.DeleteTransaction(ctx, user, template.ID)
	require.NoError(t, err)
	assert.Len(t, result.Deleted, 4)
	assert.Equal(t, template.ID, result.Deleted[len(result.Deleted)-1], "template goes last")

	for _, instance := range instances {
		_, err := h.db.Storage.GetTransaction(ctx, user, instance.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)
	}
	_, err = h.db.Storage.GetTransaction(ctx, user, template.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.True(t, h.db.Balance(checking.ID).IsZero(), "settled instance contribution reverted")
}

func TestDeleteTransaction_UnfixedTemplateCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	checking := h.db.CreateAccount("Checking", "0")
	template, instances := h.chain(t, testutil.NewTransaction("Gym").Amount("40").Account(checking.ID))
	notFixed := false
	_, err := h.db.Storage.UpdateIfVersion(ctx, user, template.ID, template.Version, model.TransactionPatch{IsFixed: &notFixed})
	require.NoError(t, err)
	require.False(t, h.db.MustGet(template.ID).IsTemplate())

	result, err := h.ledger.DeleteTransaction(ctx, user, template.ID)
	require.NoError(t, err)
	assert.Len(t, result.Deleted, len(instances)+1)
	for _, instance := range instances {
		_, err := h.db.Storage.GetTransaction(ctx, user, instance.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)
	}
}

func TestDeleteTransaction_InstanceOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	template, instances := h.chain(t, testutil.NewTransaction("Rent"))

	result, err := h.ledger.DeleteTransaction(ctx, user, instances[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{instances[0].ID}, result.Deleted)

	remaining, err := h.db.Storage.ListInstances(ctx, user, template.ID, nil)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestDeleteTransaction_RevertsSettledRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	checking := h.db.CreateAccount("Checking", "0")
	txn, err := h.ledger.CreateTransaction(ctx, testutil.NewTransaction("Salary").
		Income().Amount("2500").Account(checking.ID).Paid().Build())
	require.NoError(t, err)
	assert.Equal(t, "2500", h.db.Balance(checking.ID).String())

	result, err := h.ledger.DeleteTransaction(ctx, user, txn.ID)
	require.NoError(t, err)
	assert.True(t, result.Balances[checking.ID].IsZero())
	assert.True(t, h.db.Balance(checking.ID).IsZero())

	_, err = h.ledger.DeleteTransaction(ctx, user, txn.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	changes, unsubscribe := h.bus.Subscribe(user, 10)
	defer unsubscribe()

	txn, err := h.ledger.CreateTransaction(ctx, testutil.NewTransaction("  Book  ").Build())
	require.NoError(t, err)
	assert.Equal(t, "Book", txn.Title)
	assert.Equal(t, 1, txn.Version)

	got := drain(changes)
	require.Len(t, got, 1)
	assert.Equal(t, feed.OpInsert, got[0].Op)

	_, err = h.ledger.CreateTransaction(ctx, testutil.NewTransaction("Orphan").Account("missing").Build())
	var vErr *common.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "account_id", vErr.Field)
}

func TestImportTransactions_ReportsDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.db.Insert(testutil.NewTransaction("Coffee").Amount("3").On(testutil.Date(2024, time.January, 2)))

	drafts := []model.Transaction{
		testutil.NewTransaction("Coffee").Amount("3").On(testutil.Date(2024, time.January, 2)).Build(),
		testutil.NewTransaction("Train").Amount("12").On(testutil.Date(2024, time.January, 4)).Build(),
	}
	imported, dups, err := h.ledger.ImportTransactions(ctx, user, drafts)
	require.NoError(t, err)
	require.Len(t, imported, 2)
	assert.Equal(t, 2, dups.Count())
	assert.True(t, dups.IsDuplicate(&imported[0]))
	assert.False(t, dups.IsDuplicate(&imported[1]))
}

func TestAccounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account, err := h.ledger.CreateAccount(ctx, user, "Card", "#f00", "card", decimal.NewFromInt(-200))
	require.NoError(t, err)
	assert.Equal(t, "-200", h.db.Balance(account.ID).String())

	name := "Credit card"
	updated, err := h.ledger.UpdateAccount(ctx, user, account.ID, model.AccountPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Credit card", updated.Name)

	accounts, err := h.ledger.ListAccounts(ctx, user)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	// The opening balance row references the account.
	err = h.ledger.DeleteAccount(ctx, user, account.ID)
	var inUse *common.AccountInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, 1, inUse.Count)

	page, err := h.db.Storage.ListTransactions(ctx, user, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	_, err = h.ledger.DeleteTransaction(ctx, user, page.Transactions[0].ID)
	require.NoError(t, err)

	require.NoError(t, h.ledger.DeleteAccount(ctx, user, account.ID))
	_, err = h.ledger.GetAccount(ctx, user, account.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
