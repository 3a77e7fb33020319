package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titlePatch(title string) model.TransactionPatch {
	return model.TransactionPatch{Title: &title}
}

func amountPatch(amount string) model.TransactionPatch {
	d := decimal.RequireFromString(amount)
	return model.TransactionPatch{Amount: &d}
}

func TestEditTransaction_VersionMonotonicity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	txn := h.db.Insert(testutil.NewTransaction("Lunch"))
	version := txn.Version

	const edits = 4
	for i := 0; i < edits; i++ {
		result, err := h.ledger.EditTransaction(ctx, EditRequest{
			UserID:        user,
			TransactionID: txn.ID,
			Version:       version,
			Patch:         amountPatch(decimal.NewFromInt(int64(20 + i)).String()),
		})
		require.NoError(t, err)
		version = result.Transaction.Version
	}
	assert.Equal(t, txn.Version+edits, version)
	assert.Equal(t, version, h.db.MustGet(txn.ID).Version)
}

func TestEditTransaction_StaleVersionRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	txn := h.db.Insert(testutil.NewTransaction("Lunch"))
	_, err := h.ledger.EditTransaction(ctx, EditRequest{
		UserID: user, TransactionID: txn.ID, Version: txn.Version, Patch: titlePatch("Device A"),
	})
	require.NoError(t, err)

	changes, unsubscribe := h.bus.Subscribe(user, 10)
	defer unsubscribe()

	// Device B still holds version 1.
	_, err = h.ledger.EditTransaction(ctx, EditRequest{
		UserID: user, TransactionID: txn.ID, Version: txn.Version, Patch: titlePatch("Device B"),
	})
	require.ErrorIs(t, err, common.ErrVersionConflict)

	var conflict *common.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, txn.Version, conflict.ExpectedVersion)

	current := h.db.MustGet(txn.ID)
	assert.Equal(t, "Device A", current.Title)
	assert.Equal(t, txn.Version+1, current.Version)

	// Observers get the authoritative row to replace their stale copy.
	got := drain(changes)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Transaction)
	assert.Equal(t, "Device A", got[0].Transaction.Title)
}

func TestEditTransaction_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.db.Insert(testutil.NewTransaction("Lunch"))

	tests := []struct {
		req   EditRequest
		name  string
		field string
	}{
		{name: "empty patch", field: "patch", req: EditRequest{Version: txn.Version}},
		{name: "unknown mode", field: "mode", req: EditRequest{Version: txn.Version, Mode: model.CascadeMode(9), Patch: titlePatch("x")}},
		{name: "blank title", field: "title", req: EditRequest{Version: txn.Version, Patch: titlePatch(" ")}},
		{name: "missing account", field: "account_id", req: EditRequest{
			Version: txn.Version,
			Patch:   model.TransactionPatch{AccountID: model.StringPtr("nope")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.UserID = user
			tt.req.TransactionID = txn.ID

			_, err := h.ledger.EditTransaction(ctx, tt.req)
			var vErr *common.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Equal(t, txn.Version, h.db.MustGet(txn.ID).Version)
		})
	}
}

func TestEditTransaction_CascadeScope(t *testing.T) {
	tests := []struct {
		name         string
		mode         model.CascadeMode
		wantTitles   []string
		wantTemplate string
	}{
		{name: "single", mode: model.CascadeSingle, wantTitles: []string{"Rent", "Renamed", "Rent"}, wantTemplate: "Rent"},
		{name: "future", mode: model.CascadeFuture, wantTitles: []string{"Rent", "Renamed", "Renamed"}, wantTemplate: "Renamed"},
		{name: "all", mode: model.CascadeAll, wantTitles: []string{"Renamed", "Renamed", "Renamed"}, wantTemplate: "Renamed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			template, instances := h.chain(t, testutil.NewTransaction("Rent"))
			february := instances[1]

			result, err := h.ledger.EditTransaction(ctx, EditRequest{
				UserID:        user,
				TransactionID: february.ID,
				Version:       february.Version,
				Mode:          tt.mode,
				Patch:         titlePatch("Renamed"),
			})
			require.NoError(t, err)

			for i, instance := range instances {
				assert.Equal(t, tt.wantTitles[i], h.db.MustGet(instance.ID).Title, instance.ReferenceMonth.String())
			}
			assert.Equal(t, tt.wantTemplate, h.db.MustGet(template.ID).Title)
			assert.NotContains(t, result.Propagated, february.ID)
		})
	}
}

func TestEditTransaction_CascadeKeepsPerRowFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	template, instances := h.chain(t, testutil.NewTransaction("Rent"))

	newDate := testutil.Date(2024, time.February, 20)
	title := "Rent (new flat)"
	_, err := h.ledger.EditTransaction(ctx, EditRequest{
		UserID:        user,
		TransactionID: instances[1].ID,
		Version:       instances[1].Version,
		Mode:          model.CascadeAll,
		Patch:         model.TransactionPatch{Title: &title, TransactionDate: &newDate},
	})
	require.NoError(t, err)

	assert.Equal(t, "2024-02-20", model.FormatDate(h.db.MustGet(instances[1].ID).TransactionDate))

	january := h.db.MustGet(instances[0].ID)
	assert.Equal(t, title, january.Title)
	assert.Equal(t, "2024-01-05", model.FormatDate(january.TransactionDate))
	assert.Equal(t, instances[0].Version+1, january.Version, "siblings are bumped once")

	tmpl := h.db.MustGet(template.ID)
	assert.Equal(t, "2023-12-05", model.FormatDate(tmpl.TransactionDate))
}

func TestEditTransaction_EditingTemplateReachesInstances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	template, instances := h.chain(t, testutil.NewTransaction("Rent"))

	result, err := h.ledger.EditTransaction(ctx, EditRequest{
		UserID:        user,
		TransactionID: template.ID,
		Version:       template.Version,
		Mode:          model.CascadeFuture,
		Patch:         titlePatch("Renamed"),
	})
	require.NoError(t, err)
	assert.Len(t, result.Propagated, 3)

	for _, instance := range instances {
		assert.Equal(t, "Renamed", h.db.MustGet(instance.ID).Title)
	}
}

func TestEditTransaction_SettledBalanceCorrection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	checking := h.db.CreateAccount("Checking", "0")
	savings := h.db.CreateAccount("Savings", "0")

	txn, err := h.ledger.CreateTransaction(ctx, testutil.NewTransaction("Groceries").
		Amount("100").Account(checking.ID).Paid().Build())
	require.NoError(t, err)
	assert.Equal(t, "-100", h.db.Balance(checking.ID).String())

	// Same account: only the net delta is applied.
	result, err := h.ledger.EditTransaction(ctx, EditRequest{
		UserID: user, TransactionID: txn.ID, Version: txn.Version, Patch: amountPatch("150"),
	})
	require.NoError(t, err)
	assert.Equal(t, "-150", h.db.Balance(checking.ID).String())
	assert.Equal(t, "-150", result.Balances[checking.ID].String())

	// Different account: revert on the old, apply on the new.
	result, err = h.ledger.EditTransaction(ctx, EditRequest{
		UserID: user, TransactionID: txn.ID, Version: result.Transaction.Version,
		Patch: model.TransactionPatch{AccountID: &savings.ID},
	})
	require.NoError(t, err)
	assert.True(t, h.db.Balance(checking.ID).IsZero())
	assert.Equal(t, "-150", h.db.Balance(savings.ID).String())

	// Flipping the type reverses the sign.
	income := model.TypeIncome
	_, err = h.ledger.EditTransaction(ctx, EditRequest{
		UserID: user, TransactionID: txn.ID, Version: result.Transaction.Version,
		Patch: model.TransactionPatch{Type: &income},
	})
	require.NoError(t, err)
	assert.Equal(t, "150", h.db.Balance(savings.ID).String())
}

func TestEditTransaction_PendingRowLeavesBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	checking := h.db.CreateAccount("Checking", "0")
	txn := h.db.Insert(testutil.NewTransaction("Pending").Account(checking.ID))

	result, err := h.ledger.EditTransaction(ctx, EditRequest{
		UserID: user, TransactionID: txn.ID, Version: txn.Version, Patch: amountPatch("99"),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Balances)
	assert.True(t, h.db.Balance(checking.ID).IsZero())
}

func TestEditTransaction_CascadeCorrectsSettledSiblings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	checking := h.db.CreateAccount("Checking", "0")
	_, instances := h.chain(t, testutil.NewTransaction("Rent").Amount("1000").Account(checking.ID))

	_, err := h.ledger.Pay(ctx, user, instances[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "-1000", h.db.Balance(checking.ID).String())

	changes, unsubscribe := h.bus.Subscribe(user, 20)
	defer unsubscribe()

	_, err = h.ledger.EditTransaction(ctx, EditRequest{
		UserID:        user,
		TransactionID: instances[2].ID,
		Version:       instances[2].Version,
		Mode:          model.CascadeAll,
		Patch:         amountPatch("1100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "-1100", h.db.Balance(checking.ID).String())

	var accountUpdates int
	for _, c := range drain(changes) {
		if c.Table == feed.TableAccounts {
			accountUpdates++
		}
	}
	assert.Equal(t, 1, accountUpdates)
}
