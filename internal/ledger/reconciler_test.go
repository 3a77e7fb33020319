package ledger

import (
	"context"
	"testing"

	"github.com/Veraticus/ledger-must-balance/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	checking := h.db.CreateAccount("Checking", "999")
	h.db.Insert(testutil.NewTransaction("Salary").Income().Amount("200").Account(checking.ID).Paid())
	h.db.Insert(testutil.NewTransaction("Groceries").Amount("50.50").Account(checking.ID).Paid())
	h.db.Insert(testutil.NewTransaction("Pending").Amount("30").Account(checking.ID))
	h.db.Insert(testutil.NewTransaction("Other account").Amount("1000").Paid())

	first, err := h.ledger.Reconcile(ctx, user, checking.ID)
	require.NoError(t, err)
	assert.Equal(t, "149.5", first.Balance.String())
	assert.Equal(t, "999", first.Previous.String())
	assert.Equal(t, "-849.5", first.Drift.String())
	assert.Equal(t, 2, first.Settled)

	second, err := h.ledger.Reconcile(ctx, user, checking.ID)
	require.NoError(t, err)
	assert.True(t, first.Balance.Equal(second.Balance))
	assert.True(t, second.Drift.IsZero())
	assert.Equal(t, "149.5", h.db.Balance(checking.ID).String())
}

func TestReconcile_AgreesWithSettlementPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account, err := h.ledger.CreateAccount(ctx, user, "Wallet", "", "", decimal.NewFromInt(40))
	require.NoError(t, err)

	txn := h.db.Insert(testutil.NewTransaction("Snack").Amount("7.5").Account(account.ID))
	_, err = h.ledger.Pay(ctx, user, txn.ID)
	require.NoError(t, err)

	before := h.db.Balance(account.ID)
	result, err := h.ledger.Reconcile(ctx, user, account.ID)
	require.NoError(t, err)
	assert.True(t, before.Equal(result.Balance), "opening balance survives reconciliation")
	assert.True(t, result.Drift.IsZero())
	assert.Equal(t, "32.5", result.Balance.String())
}

func TestReconcileAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.db.CreateAccount("A", "10")
	h.db.CreateAccount("B", "0")

	results, err := h.ledger.ReconcileAll(ctx, user)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Balance.IsZero())
	}
}
