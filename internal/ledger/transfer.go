package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferCategory is the category given to both legs of a transfer.
const TransferCategory = "Transfer"

const defaultTransferDescription = "Transfer"

var errAccountRequired = errors.New("account is required")

// TransferRequest moves money between two accounts of one user.
type TransferRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	UserID        string          `json:"-"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Description   string          `json:"description"`
}

// TransferResult holds the two settled legs and the new balances.
type TransferResult struct {
	Expense     model.Transaction `json:"expense"`
	Income      model.Transaction `json:"income"`
	FromBalance decimal.Decimal   `json:"from_balance"`
	ToBalance   decimal.Decimal   `json:"to_balance"`
	TransferID  string            `json:"transfer_id"`
}

// Validate rejects a transfer before anything is written.
func (r TransferRequest) Validate() error {
	if strings.TrimSpace(r.FromAccountID) == "" {
		return common.NewValidationError("from_account_id", errAccountRequired)
	}
	if strings.TrimSpace(r.ToAccountID) == "" {
		return common.NewValidationError("to_account_id", errAccountRequired)
	}
	if r.FromAccountID == r.ToAccountID {
		return common.NewValidationError("to_account_id", common.ErrSameAccount)
	}
	if !r.Amount.IsPositive() {
		return common.NewValidationError("amount", common.ErrInvalidAmount)
	}
	return nil
}

// Transfer records an expense on the source and an income on the destination,
// both already settled and sharing one transfer id, and moves the balances.
// Both inserts and both balance writes commit together or not at all.
// Transfers are never retried automatically.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = defaultTransferDescription
	}

	transferID := uuid.NewString()
	result := &TransferResult{TransferID: transferID}

	err := l.inTx(ctx, func(tx service.Transaction) ([]feed.Change, error) {
		source, err := transferAccount(ctx, tx, req.UserID, req.FromAccountID, "from_account_id")
		if err != nil {
			return nil, err
		}
		destination, err := transferAccount(ctx, tx, req.UserID, req.ToAccountID, "to_account_id")
		if err != nil {
			return nil, err
		}

		today := l.today()
		result.Expense = l.transferLeg(req, transferID, source.ID, model.TypeExpense,
			fmt.Sprintf("%s → %s", description, destination.Name), today)
		result.Income = l.transferLeg(req, transferID, destination.ID, model.TypeIncome,
			fmt.Sprintf("%s ← %s", description, source.Name), today)

		if err := tx.InsertTransaction(ctx, &result.Expense); err != nil {
			return nil, fmt.Errorf("failed to insert expense leg: %w", err)
		}
		if err := tx.InsertTransaction(ctx, &result.Income); err != nil {
			return nil, fmt.Errorf("failed to insert income leg: %w", err)
		}

		if result.FromBalance, err = tx.AdjustBalance(ctx, req.UserID, source.ID, req.Amount.Neg()); err != nil {
			return nil, fmt.Errorf("failed to debit source: %w", err)
		}
		if result.ToBalance, err = tx.AdjustBalance(ctx, req.UserID, destination.ID, req.Amount); err != nil {
			return nil, fmt.Errorf("failed to credit destination: %w", err)
		}

		return []feed.Change{
			feed.TransactionChange(feed.OpInsert, &result.Expense),
			feed.TransactionChange(feed.OpInsert, &result.Income),
			{Op: feed.OpUpdate, Table: feed.TableAccounts, ID: source.ID, UserID: req.UserID},
			{Op: feed.OpUpdate, Table: feed.TableAccounts, ID: destination.ID, UserID: req.UserID},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Transferred funds",
		"user_id", req.UserID,
		"transfer_id", transferID,
		"from", req.FromAccountID,
		"to", req.ToAccountID,
		"amount", req.Amount.String())
	return result, nil
}

// transferAccount loads one side of a transfer. Only a missing account is a
// validation failure; storage errors keep their retryable classification.
func transferAccount(ctx context.Context, tx service.Transaction, userID, accountID, field string) (*model.Account, error) {
	account, err := tx.GetAccount(ctx, userID, accountID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewValidationError(field, err)
	}
	return account, err
}

func (l *Ledger) transferLeg(req TransferRequest, transferID, accountID string, typ model.TransactionType, title string, on time.Time) model.Transaction {
	return model.Transaction{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Title:           title,
		Amount:          req.Amount,
		Type:            typ,
		Category:        TransferCategory,
		TransactionDate: on,
		IsPaid:          true,
		AccountID:       model.StringPtr(accountID),
		TransferID:      model.StringPtr(transferID),
		Version:         1,
		CreatedAt:       l.now().UTC(),
	}
}
