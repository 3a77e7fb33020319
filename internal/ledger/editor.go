package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

// EditRequest is a user patch against the version of the row the user saw.
type EditRequest struct {
	Patch         model.TransactionPatch `json:"patch"`
	UserID        string                 `json:"-"`
	TransactionID string                 `json:"-"`
	Version       int                    `json:"version"`
	Mode          model.CascadeMode      `json:"mode"`
}

// EditResult is the outcome of a successful edit.
type EditResult struct {
	Transaction *model.Transaction `json:"transaction"`
	// Propagated lists the sibling rows the cascade also changed.
	Propagated []string `json:"propagated"`
	// Balances maps each corrected account to its new balance.
	Balances map[string]decimal.Decimal `json:"balances"`
}

// EditTransaction applies a patch guarded by the caller's version. A stale
// version fails with *common.ConflictError and changes nothing; the current
// row is then published on the feed so caches drop the stale copy.
func (l *Ledger) EditTransaction(ctx context.Context, req EditRequest) (*EditResult, error) {
	if err := validateMode(req.Mode); err != nil {
		return nil, err
	}
	if req.Patch.IsEmpty() {
		return nil, common.NewValidationError("patch", common.ErrEmptyPatch)
	}

	result := &EditResult{Balances: make(map[string]decimal.Decimal)}
	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		return l.editTx(ctx, tx, req, result)
	})
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			l.publishCurrent(ctx, req.UserID, req.TransactionID)
			slog.Warn("Edit rejected, transaction modified elsewhere",
				"user_id", req.UserID,
				"transaction_id", req.TransactionID,
				"version", req.Version)
		}
		return nil, err
	}

	slog.Debug("Edited transaction",
		"user_id", req.UserID,
		"transaction_id", req.TransactionID,
		"mode", req.Mode.String(),
		"version", result.Transaction.Version,
		"propagated", len(result.Propagated))
	return result, nil
}

func (l *Ledger) editTx(ctx context.Context, tx service.Transaction, req EditRequest, result *EditResult) ([]feed.Change, error) {
	before, err := tx.GetTransaction(ctx, req.UserID, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if before.Version != req.Version {
		return nil, &common.ConflictError{TransactionID: req.TransactionID, ExpectedVersion: req.Version}
	}
	if err := requireAccount(ctx, tx, req.UserID, req.Patch); err != nil {
		return nil, err
	}

	if _, err := tx.UpdateIfVersion(ctx, req.UserID, req.TransactionID, req.Version, req.Patch); err != nil {
		return nil, err
	}
	after, err := tx.GetTransaction(ctx, req.UserID, req.TransactionID)
	if err != nil {
		return nil, err
	}
	result.Transaction = after

	changes := []feed.Change{feed.TransactionChange(feed.OpUpdate, after)}
	deltas := make(balanceDeltas)
	deltas.move(before, after)

	siblings, err := cascadeTargets(ctx, tx, before, req.Mode)
	if err != nil {
		return nil, err
	}
	if cascade := req.Patch.CascadeFields(); len(siblings) > 0 && !cascade.IsEmpty() {
		ids := make([]string, len(siblings))
		for i := range siblings {
			ids[i] = siblings[i].ID
			updated := cascade.Apply(siblings[i])
			updated.Version++
			deltas.move(&siblings[i], &updated)
			changes = append(changes, feed.TransactionChange(feed.OpUpdate, &updated))
		}

		if _, err := tx.UpdateTransactions(ctx, req.UserID, ids, cascade); err != nil {
			return nil, fmt.Errorf("failed to propagate edit: %w", err)
		}
		result.Propagated = ids
	}

	balances, err := deltas.apply(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}
	for accountID, balance := range balances {
		result.Balances[accountID] = balance
		changes = append(changes, feed.Change{
			Op: feed.OpUpdate, Table: feed.TableAccounts, ID: accountID, UserID: req.UserID,
		})
	}
	return changes, nil
}

// cascadeTargets returns the rows of the edited row's recurrence chain that
// mode reaches, excluding the edited row itself.
func cascadeTargets(ctx context.Context, tx service.Transaction, edited *model.Transaction, mode model.CascadeMode) ([]model.Transaction, error) {
	var fromMonth *model.Month
	switch mode {
	case model.CascadeSingle:
		return nil, nil
	case model.CascadeFuture:
		m := model.MonthOf(edited.TransactionDate)
		if edited.ReferenceMonth != nil {
			m = *edited.ReferenceMonth
		}
		fromMonth = &m
	case model.CascadeAll:
	default:
		return nil, validateMode(mode)
	}

	templateID := edited.ID
	var targets []model.Transaction
	if edited.ParentTransactionID != nil {
		templateID = *edited.ParentTransactionID
		template, err := tx.GetTransaction(ctx, edited.UserID, templateID)
		switch {
		case err == nil:
			targets = append(targets, *template)
		case !errors.Is(err, common.ErrNotFound):
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
	}

	instances, err := tx.ListInstances(ctx, edited.UserID, templateID, fromMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	for _, instance := range instances {
		if instance.ID != edited.ID {
			targets = append(targets, instance)
		}
	}
	return targets, nil
}

func validateMode(mode model.CascadeMode) error {
	switch mode {
	case model.CascadeSingle, model.CascadeFuture, model.CascadeAll:
		return nil
	default:
		return common.NewValidationError("mode", fmt.Errorf("unknown cascade mode %s", mode))
	}
}

// requireAccount checks that an account the patch links to belongs to the user.
func requireAccount(ctx context.Context, tx service.Transaction, userID string, patch model.TransactionPatch) error {
	if patch.AccountID == nil || patch.ClearAccount {
		return nil
	}
	if _, err := tx.GetAccount(ctx, userID, *patch.AccountID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewValidationError("account_id", err)
		}
		return err
	}
	return nil
}

// publishCurrent pushes the authoritative row so observers replace stale copies.
func (l *Ledger) publishCurrent(ctx context.Context, userID, transactionID string) {
	current, err := l.storage.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		slog.Debug("Could not reload transaction after conflict", "transaction_id", transactionID, "error", err)
		return
	}
	l.feed.Publish(feed.TransactionChange(feed.OpUpdate, current))
}

// balanceDeltas accumulates per-account corrections so each account row is
// read and written once per operation.
type balanceDeltas map[string]decimal.Decimal

// move records reverting before's contribution and applying after's.
func (d balanceDeltas) move(before, after *model.Transaction) {
	if before.AccountID != nil {
		d.add(*before.AccountID, before.Contribution().Neg())
	}
	if after.AccountID != nil {
		d.add(*after.AccountID, after.Contribution())
	}
}

func (d balanceDeltas) add(accountID string, delta decimal.Decimal) {
	d[accountID] = d[accountID].Add(delta)
}

func (d balanceDeltas) apply(ctx context.Context, tx service.Transaction, userID string) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal)
	for accountID, delta := range d {
		if delta.IsZero() {
			continue
		}
		balance, err := tx.AdjustBalance(ctx, userID, accountID, delta)
		if err != nil {
			return nil, fmt.Errorf("failed to adjust balance of %s: %w", accountID, err)
		}
		balances[accountID] = balance
	}
	return balances, nil
}
