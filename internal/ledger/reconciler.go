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

// ReconcileResult reports one balance recomputation.
type ReconcileResult struct {
	AccountID string          `json:"account_id"`
	Previous  decimal.Decimal `json:"previous"`
	Balance   decimal.Decimal `json:"balance"`
	Drift     decimal.Decimal `json:"drift"`
	Settled   int             `json:"settled"`
}

// Reconcile rebuilds an account balance as the signed sum of its settled
// transactions. Running it twice yields the same balance.
func (l *Ledger) Reconcile(ctx context.Context, userID, accountID string) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		var err error
		result, err = reconcileTx(ctx, tx, userID, accountID)
		if err != nil {
			return nil, err
		}
		if result.Drift.IsZero() {
			return nil, nil
		}
		return []feed.Change{{Op: feed.OpUpdate, Table: feed.TableAccounts, ID: accountID, UserID: userID}}, nil
	})
	if err != nil {
		return nil, err
	}

	if result.Drift.IsZero() {
		slog.Debug("Account balance consistent", "account_id", accountID, "balance", result.Balance.String())
	} else {
		slog.Info("Reconciled account balance",
			"user_id", userID,
			"account_id", accountID,
			"previous", result.Previous.String(),
			"balance", result.Balance.String(),
			"drift", result.Drift.String())
	}
	return result, nil
}

// ReconcileAll reconciles every account of the user.
func (l *Ledger) ReconcileAll(ctx context.Context, userID string) ([]ReconcileResult, error) {
	accounts, err := l.storage.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	results := make([]ReconcileResult, 0, len(accounts))
	for _, account := range accounts {
		result, err := l.Reconcile(ctx, userID, account.ID)
		if err != nil {
			return results, fmt.Errorf("failed to reconcile %s: %w", account.Name, err)
		}
		results = append(results, *result)
	}
	return results, nil
}

func reconcileTx(ctx context.Context, tx service.Transaction, userID, accountID string) (*ReconcileResult, error) {
	account, err := tx.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	settled, err := tx.ListSettledByAccount(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settled transactions: %w", err)
	}

	balance := SettledSum(settled)
	if err := tx.SetBalance(ctx, userID, accountID, balance); err != nil {
		return nil, fmt.Errorf("failed to set balance: %w", err)
	}

	return &ReconcileResult{
		AccountID: accountID,
		Previous:  account.Balance,
		Balance:   balance,
		Drift:     balance.Sub(account.Balance),
		Settled:   len(settled),
	}, nil
}

// SettledSum is the signed sum of the contributions of txns.
func SettledSum(txns []model.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for i := range txns {
		sum = sum.Add(txns[i].Contribution())
	}
	return sum
}
