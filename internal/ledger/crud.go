package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpeningBalanceTitle names the settled row that carries an account's initial balance.
const OpeningBalanceTitle = "Opening balance"

// DeleteResult reports what a delete removed.
type DeleteResult struct {
	Balances map[string]decimal.Decimal `json:"balances"`
	Deleted  []string                   `json:"deleted"`
}

// GetTransaction returns one of the user's transactions.
func (l *Ledger) GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error) {
	return l.storage.GetTransaction(ctx, userID, id)
}

// CreateTransaction stores a new transaction. A draft created already settled
// applies its contribution to the linked account in the same write.
func (l *Ledger) CreateTransaction(ctx context.Context, draft model.Transaction) (*model.Transaction, error) {
	txn := l.prepareDraft(draft)

	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		return l.insertTx(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Created transaction", "user_id", txn.UserID, "transaction_id", txn.ID)
	return txn, nil
}

// ImportTransactions stores a batch of drafts in one database transaction and
// reports which of the stored rows look like duplicates of each other or of
// rows already present in the same dates.
func (l *Ledger) ImportTransactions(ctx context.Context, userID string, drafts []model.Transaction) ([]model.Transaction, DuplicateSet, error) {
	if len(drafts) == 0 {
		return nil, DuplicateSet{}, nil
	}

	imported := make([]model.Transaction, 0, len(drafts))
	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		var changes []feed.Change
		for _, draft := range drafts {
			draft.UserID = userID
			txn := l.prepareDraft(draft)
			c, err := l.insertTx(ctx, tx, txn)
			if err != nil {
				return nil, fmt.Errorf("failed to import %q: %w", draft.Title, err)
			}
			changes = append(changes, c...)
			imported = append(imported, *txn)
		}
		return changes, nil
	})
	if err != nil {
		return nil, DuplicateSet{}, err
	}

	start, end := imported[0].TransactionDate, imported[0].TransactionDate
	for _, txn := range imported[1:] {
		if txn.TransactionDate.Before(start) {
			start = txn.TransactionDate
		}
		if txn.TransactionDate.After(end) {
			end = txn.TransactionDate
		}
	}

	var window []model.Transaction
	for offset := 0; ; {
		page, err := l.storage.ListTransactions(ctx, userID, service.TransactionFilter{
			StartDate: start, EndDate: end, Limit: 500, Offset: offset,
		})
		if err != nil {
			return imported, DuplicateSet{}, fmt.Errorf("failed to load imported range: %w", err)
		}
		window = append(window, page.Transactions...)
		offset += len(page.Transactions)
		if len(page.Transactions) == 0 || offset >= page.Total {
			break
		}
	}

	slog.Info("Imported transactions", "user_id", userID, "count", len(imported))
	return imported, FindDuplicates(window), nil
}

func (l *Ledger) prepareDraft(draft model.Transaction) *model.Transaction {
	txn := draft
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	txn.Title = strings.TrimSpace(txn.Title)
	txn.Version = 1
	txn.CreatedAt = l.now().UTC()
	return &txn
}

func (l *Ledger) insertTx(ctx context.Context, tx service.Transaction, txn *model.Transaction) ([]feed.Change, error) {
	if txn.AccountID != nil {
		if _, err := tx.GetAccount(ctx, txn.UserID, *txn.AccountID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, common.NewValidationError("account_id", err)
			}
			return nil, err
		}
	}

	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	changes := []feed.Change{feed.TransactionChange(feed.OpInsert, txn)}

	if contribution := txn.Contribution(); !contribution.IsZero() {
		if _, err := tx.AdjustBalance(ctx, txn.UserID, *txn.AccountID, contribution); err != nil {
			return nil, fmt.Errorf("failed to adjust balance: %w", err)
		}
		changes = append(changes, feed.Change{
			Op: feed.OpUpdate, Table: feed.TableAccounts, ID: *txn.AccountID, UserID: txn.UserID,
		})
	}
	return changes, nil
}

// DeleteTransaction removes a transaction. Deleting a template first deletes
// all of its instances. Every settled row removed gives its contribution back
// to its account in the same write.
func (l *Ledger) DeleteTransaction(ctx context.Context, userID, id string) (*DeleteResult, error) {
	result := &DeleteResult{Balances: make(map[string]decimal.Decimal)}

	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		txn, err := tx.GetTransaction(ctx, userID, id)
		if err != nil {
			return nil, err
		}

		deltas := make(balanceDeltas)
		var changes []feed.Change

		// Any top-level row may own instances, not only a current template: a
		// template edited to is_fixed=false keeps its generated children.
		if !txn.IsInstance() {
			instances, err := tx.ListInstances(ctx, userID, txn.ID, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to list instances: %w", err)
			}
			if len(instances) > 0 {
				if _, err := tx.DeleteInstances(ctx, userID, txn.ID); err != nil {
					return nil, fmt.Errorf("failed to delete instances: %w", err)
				}
			}
			for i := range instances {
				revert(deltas, &instances[i])
				result.Deleted = append(result.Deleted, instances[i].ID)
				changes = append(changes, feed.TransactionChange(feed.OpDelete, &instances[i]))
			}
		}

		if err := tx.DeleteTransaction(ctx, userID, txn.ID); err != nil {
			return nil, err
		}
		revert(deltas, txn)
		result.Deleted = append(result.Deleted, txn.ID)
		changes = append(changes, feed.TransactionChange(feed.OpDelete, txn))

		balances, err := deltas.apply(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		for accountID, balance := range balances {
			result.Balances[accountID] = balance
			changes = append(changes, feed.Change{
				Op: feed.OpUpdate, Table: feed.TableAccounts, ID: accountID, UserID: userID,
			})
		}
		return changes, nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Deleted transaction", "user_id", userID, "transaction_id", id, "rows", len(result.Deleted))
	return result, nil
}

func revert(deltas balanceDeltas, txn *model.Transaction) {
	if txn.AccountID != nil {
		deltas.add(*txn.AccountID, txn.Contribution().Neg())
	}
}

// ListAccounts returns the user's accounts ordered by name.
func (l *Ledger) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	return l.storage.ListAccounts(ctx, userID)
}

// GetAccount returns one of the user's accounts.
func (l *Ledger) GetAccount(ctx context.Context, userID, id string) (*model.Account, error) {
	return l.storage.GetAccount(ctx, userID, id)
}

// CreateAccount stores a new account. A non-zero opening balance is recorded
// as a settled transaction so reconciliation keeps it.
func (l *Ledger) CreateAccount(ctx context.Context, userID, name, color, icon string, opening decimal.Decimal) (*model.Account, error) {
	account := &model.Account{
		UserID: userID,
		Name:   name,
		Color:  color,
		Icon:   icon,
	}

	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		if err := tx.InsertAccount(ctx, account); err != nil {
			return nil, err
		}
		changes := []feed.Change{feed.AccountChange(feed.OpInsert, account)}
		if opening.IsZero() {
			return changes, nil
		}

		typ := model.TypeIncome
		if opening.IsNegative() {
			typ = model.TypeExpense
		}
		txn := l.prepareDraft(model.Transaction{
			UserID:          userID,
			Title:           OpeningBalanceTitle,
			Amount:          opening.Abs(),
			Type:            typ,
			Category:        OpeningBalanceTitle,
			TransactionDate: l.today(),
			IsPaid:          true,
			AccountID:       model.StringPtr(account.ID),
		})
		c, err := l.insertTx(ctx, tx, txn)
		if err != nil {
			return nil, fmt.Errorf("failed to record opening balance: %w", err)
		}
		account.Balance = opening
		return append(changes, c...), nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Created account", "user_id", userID, "account_id", account.ID, "name", account.Name)
	return account, nil
}

// UpdateAccount edits the name, color or icon of an account.
func (l *Ledger) UpdateAccount(ctx context.Context, userID, id string, patch model.AccountPatch) (*model.Account, error) {
	var account *model.Account
	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		if err := tx.UpdateAccount(ctx, userID, id, patch); err != nil {
			return nil, err
		}
		var err error
		account, err = tx.GetAccount(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		return []feed.Change{feed.AccountChange(feed.OpUpdate, account)}, nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount removes an account no transaction references. Otherwise it
// fails with *common.AccountInUseError carrying the blocking count.
func (l *Ledger) DeleteAccount(ctx context.Context, userID, id string) error {
	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		if err := tx.DeleteAccount(ctx, userID, id); err != nil {
			return nil, err
		}
		return []feed.Change{{Op: feed.OpDelete, Table: feed.TableAccounts, ID: id, UserID: userID}}, nil
	})
	if err != nil {
		var inUse *common.AccountInUseError
		if errors.As(err, &inUse) {
			slog.Warn("Refused to delete account in use", "account_id", id, "count", inUse.Count)
		}
		return err
	}

	slog.Info("Deleted account", "user_id", userID, "account_id", id)
	return nil
}
