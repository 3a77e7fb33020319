package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

// SettlementResult is the state after a successful pay or unpay.
type SettlementResult struct {
	Transaction *model.Transaction `json:"transaction"`
	// Balance is the linked account's new balance, nil for unlinked rows.
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// Pay settles a pending transaction and applies its amount to the linked
// account in the same database transaction. It fails with ErrAlreadyPaid when
// the row is already settled. Pay is never retried automatically.
func (l *Ledger) Pay(ctx context.Context, userID, transactionID string) (*SettlementResult, error) {
	return l.settle(ctx, userID, transactionID, true)
}

// Unpay reverses a settlement. It fails with ErrNotPaid when the row is pending.
func (l *Ledger) Unpay(ctx context.Context, userID, transactionID string) (*SettlementResult, error) {
	return l.settle(ctx, userID, transactionID, false)
}

func (l *Ledger) settle(ctx context.Context, userID, transactionID string, paid bool) (*SettlementResult, error) {
	result := &SettlementResult{}

	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		txn, err := tx.GetTransaction(ctx, userID, transactionID)
		if err != nil {
			return nil, err
		}

		// The flag flip is conditional on the opposite state, so a second
		// caller racing on the same row gets ErrAlreadyPaid/ErrNotPaid.
		version, err := tx.SetPaid(ctx, userID, transactionID, paid)
		if err != nil {
			return nil, err
		}
		txn.IsPaid = paid
		txn.Version = version
		result.Transaction = txn

		changes := []feed.Change{feed.TransactionChange(feed.OpUpdate, txn)}
		if txn.AccountID == nil {
			return changes, nil
		}

		delta := txn.SignedAmount()
		if !paid {
			delta = delta.Neg()
		}
		balance, err := tx.AdjustBalance(ctx, userID, *txn.AccountID, delta)
		if err != nil {
			return nil, fmt.Errorf("failed to adjust balance: %w", err)
		}
		result.Balance = &balance

		return append(changes, feed.Change{
			Op: feed.OpUpdate, Table: feed.TableAccounts, ID: *txn.AccountID, UserID: userID,
		}), nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Settlement changed",
		"user_id", userID,
		"transaction_id", transactionID,
		"is_paid", paid,
		"version", result.Transaction.Version)
	return result, nil
}
