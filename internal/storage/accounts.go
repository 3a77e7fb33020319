package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const accountColumns = "id, user_id, name, balance, color, icon, created_at, updated_at"

// ListAccounts returns the user's accounts ordered by name.
func (s *SQLiteStorage) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	return s.listAccountsTx(ctx, s.db, userID)
}

func (s *SQLiteStorage) listAccountsTx(ctx context.Context, q queryable, userID string) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = ? ORDER BY name COLLATE NOCASE, id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", classifyError(err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// GetAccount retrieves one account owned by userID.
func (s *SQLiteStorage) GetAccount(ctx context.Context, userID, id string) (*model.Account, error) {
	return s.getAccountTx(ctx, s.db, userID, id)
}

func (s *SQLiteStorage) getAccountTx(ctx context.Context, q queryable, userID, id string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	account, err := scanAccount(q.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? AND user_id = ?", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", classifyError(err))
	}
	return account, nil
}

// InsertAccount stores a new account. The balance given is its opening balance.
func (s *SQLiteStorage) InsertAccount(ctx context.Context, account *model.Account) error {
	return s.insertAccountTx(ctx, s.db, account)
}

func (s *SQLiteStorage) insertAccountTx(ctx context.Context, q queryable, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := ValidateAccount(account); err != nil {
		return err
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := s.now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	account.Name = strings.TrimSpace(account.Name)

	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.UserID, account.Name, account.Balance.String(),
		account.Color, account.Icon, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", account.ID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert account: %w", classifyError(err))
	}

	slog.Debug("Inserted account", "account_id", account.ID, "user_id", account.UserID)
	return nil
}

// UpdateAccount changes the user-editable fields of an account.
func (s *SQLiteStorage) UpdateAccount(ctx context.Context, userID, id string, patch model.AccountPatch) error {
	return s.updateAccountTx(ctx, s.db, userID, id, patch)
}

func (s *SQLiteStorage) updateAccountTx(ctx context.Context, q queryable, userID, id string, patch model.AccountPatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return common.NewValidationError("patch", common.ErrEmptyPatch)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return common.NewValidationError("name", ErrRequired)
	}

	sets := []string{"updated_at = ?"}
	args := []any{s.now().UTC()}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*patch.Name))
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}
	if patch.Icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *patch.Icon)
	}
	args = append(args, id, userID)

	result, err := q.ExecContext(ctx,
		"UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", classifyError(err))
	}
	return requireRow(result, "account", id)
}

// DeleteAccount removes an account nothing references anymore. The reference
// count is checked first and a non-zero count aborts with *common.AccountInUseError.
func (s *SQLiteStorage) DeleteAccount(ctx context.Context, userID, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.deleteAccountTx(ctx, tx, userID, id)
	})
}

func (s *SQLiteStorage) deleteAccountTx(ctx context.Context, q queryable, userID, id string) error {
	if _, err := s.getAccountTx(ctx, q, userID, id); err != nil {
		return err
	}

	count, err := s.countTransactionsByAccountTx(ctx, q, userID, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return &common.AccountInUseError{AccountID: id, Count: count}
	}

	result, err := q.ExecContext(ctx, "DELETE FROM accounts WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", classifyError(err))
	}
	if err := requireRow(result, "account", id); err != nil {
		return err
	}

	slog.Debug("Deleted account", "account_id", id, "user_id", userID)
	return nil
}

// AdjustBalance adds delta to an account and returns the new balance. The read
// and the write touch only this one row.
func (s *SQLiteStorage) AdjustBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = s.adjustBalanceTx(ctx, tx, userID, accountID, delta)
		return err
	})
	return balance, err
}

func (s *SQLiteStorage) adjustBalanceTx(ctx context.Context, q queryable, userID, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	account, err := s.getAccountTx(ctx, q, userID, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := account.Balance.Add(delta)
	if err := s.setBalanceTx(ctx, q, userID, accountID, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// SetBalance overwrites an account balance.
func (s *SQLiteStorage) SetBalance(ctx context.Context, userID, accountID string, balance decimal.Decimal) error {
	return s.setBalanceTx(ctx, s.db, userID, accountID, balance)
}

func (s *SQLiteStorage) setBalanceTx(ctx context.Context, q queryable, userID, accountID string, balance decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx,
		"UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		balance.String(), s.now().UTC(), accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", classifyError(err))
	}
	return requireRow(result, "account", accountID)
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.ID, &account.UserID, &account.Name, &account.Balance,
		&account.Color, &account.Icon, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func requireRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, common.ErrNotFound)
	}
	return nil
}
