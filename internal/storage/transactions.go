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
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/google/uuid"
)

const transactionColumns = `id, user_id, title, amount, type, category, transaction_date,
	is_fixed, is_paid, is_installment, current_installment, total_installments,
	payment_method, parent_transaction_id, reference_month, account_id,
	recurrence_day, transfer_id, version, created_at`

// DefaultPageSize is used when a listing does not set a limit.
const DefaultPageSize = 50

// ListTransactions returns one page of a user's transactions dated within the
// inclusive filter range, newest first, along with the total row count.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, userID string, filter service.TransactionFilter) (*service.TransactionPage, error) {
	return s.listTransactionsTx(ctx, s.db, userID, filter)
}

func (s *SQLiteStorage) listTransactionsTx(ctx context.Context, q queryable, userID string, filter service.TransactionFilter) (*service.TransactionPage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if !filter.StartDate.IsZero() && !filter.EndDate.IsZero() && filter.EndDate.Before(filter.StartDate) {
		return nil, ErrInvalidDateRange
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	where := []string{"user_id = ?"}
	args := []any{userID}
	if !filter.StartDate.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, model.FormatDate(filter.StartDate))
	}
	if !filter.EndDate.IsZero() {
		where = append(where, "transaction_date <= ?")
		args = append(args, model.FormatDate(filter.EndDate))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", classifyError(err))
	}

	query := "SELECT " + transactionColumns + " FROM transactions WHERE " + clause +
		" ORDER BY transaction_date DESC, created_at DESC, id LIMIT ? OFFSET ?"
	txns, err := s.queryTransactions(ctx, q, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}

	return &service.TransactionPage{
		Transactions: txns,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

// GetTransaction retrieves a single transaction owned by userID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error) {
	return s.getTransactionTx(ctx, s.db, userID, id)
}

func (s *SQLiteStorage) getTransactionTx(ctx context.Context, q queryable, userID, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := q.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND user_id = ?", id, userID)
	txn, err := s.scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", classifyError(err))
	}
	return txn, nil
}

// InsertTransaction stores a new transaction. Missing ids are generated,
// versions start at 1 and templates are tagged with their own month.
func (s *SQLiteStorage) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	return s.insertTransactionTx(ctx, s.db, txn)
}

func (s *SQLiteStorage) insertTransactionTx(ctx context.Context, q queryable, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := ValidateTransaction(txn); err != nil {
		return err
	}

	s.prepareInsert(txn)

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transactionArgs(txn)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %s: %w", txn.ID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert transaction: %w", classifyError(err))
	}

	slog.Debug("Inserted transaction", "transaction_id", txn.ID, "user_id", txn.UserID)
	return nil
}

// prepareInsert fills in the server-owned fields of a new row.
func (s *SQLiteStorage) prepareInsert(txn *model.Transaction) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Version <= 0 {
		txn.Version = 1
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.now().UTC()
	}
	if txn.IsFixed && txn.ReferenceMonth == nil {
		m := model.MonthOf(txn.TransactionDate)
		txn.ReferenceMonth = &m
	}
	if !txn.IsFixed && txn.ParentTransactionID == nil {
		txn.ReferenceMonth = nil
	}
}

// UpdateIfVersion applies patch only while the row is still at expectedVersion.
func (s *SQLiteStorage) UpdateIfVersion(ctx context.Context, userID, id string, expectedVersion int, patch model.TransactionPatch) (int, error) {
	return s.updateIfVersionTx(ctx, s.db, userID, id, expectedVersion, patch)
}

func (s *SQLiteStorage) updateIfVersionTx(ctx context.Context, q queryable, userID, id string, expectedVersion int, patch model.TransactionPatch) (int, error) {
	if err := ValidatePatch(patch); err != nil {
		return 0, err
	}

	current, err := s.getTransactionTx(ctx, q, userID, id)
	if err != nil {
		return 0, err
	}
	if current.Version != expectedVersion {
		return 0, &common.ConflictError{TransactionID: id, ExpectedVersion: expectedVersion}
	}

	newVersion, err := s.writeTransaction(ctx, q, patch.Apply(*current), expectedVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &common.ConflictError{TransactionID: id, ExpectedVersion: expectedVersion}
	}
	if err != nil {
		return 0, err
	}

	slog.Debug("Updated transaction",
		"transaction_id", id,
		"user_id", userID,
		"version", newVersion)
	return newVersion, nil
}

// UpdateTransactions applies patch to every listed row. Rows that vanished
// in the meantime are skipped; the count of updated rows is returned.
func (s *SQLiteStorage) UpdateTransactions(ctx context.Context, userID string, ids []string, patch model.TransactionPatch) (int, error) {
	return s.updateTransactionsTx(ctx, s.db, userID, ids, patch)
}

func (s *SQLiteStorage) updateTransactionsTx(ctx context.Context, q queryable, userID string, ids []string, patch model.TransactionPatch) (int, error) {
	if err := ValidatePatch(patch); err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		current, err := s.getTransactionTx(ctx, q, userID, id)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return updated, err
		}

		if _, err := s.writeTransaction(ctx, q, patch.Apply(*current), current.Version); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return updated, &common.ConflictError{TransactionID: id, ExpectedVersion: current.Version}
			}
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// writeTransaction persists every mutable column of txn guarded by the
// version compare-and-swap, returning the new version.
func (s *SQLiteStorage) writeTransaction(ctx context.Context, q queryable, txn model.Transaction, expectedVersion int) (int, error) {
	var newVersion int
	err := q.QueryRowContext(ctx, `
		UPDATE transactions SET
			title = ?, amount = ?, type = ?, category = ?, transaction_date = ?,
			is_fixed = ?, is_installment = ?, current_installment = ?, total_installments = ?,
			payment_method = ?, reference_month = ?, account_id = ?, recurrence_day = ?,
			version = version + 1
		WHERE id = ? AND user_id = ? AND version = ?
		RETURNING version`,
		txn.Title, txn.Amount.String(), string(txn.Type), txn.Category, model.FormatDate(txn.TransactionDate),
		txn.IsFixed, txn.IsInstallment, nullInt(txn.CurrentInstallment), nullInt(txn.TotalInstallments),
		nullString(txn.PaymentMethod), nullMonth(txn.ReferenceMonth), txn.AccountID, nullInt(txn.RecurrenceDay),
		txn.ID, txn.UserID, expectedVersion,
	).Scan(&newVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update transaction: %w", classifyError(err))
	}
	return newVersion, nil
}

// SetPaid flips is_paid only if it currently holds the opposite value.
func (s *SQLiteStorage) SetPaid(ctx context.Context, userID, id string, paid bool) (int, error) {
	return s.setPaidTx(ctx, s.db, userID, id, paid)
}

func (s *SQLiteStorage) setPaidTx(ctx context.Context, q queryable, userID, id string, paid bool) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var newVersion int
	err := q.QueryRowContext(ctx, `
		UPDATE transactions SET is_paid = ?, version = version + 1
		WHERE id = ? AND user_id = ? AND is_paid = ?
		RETURNING version`,
		paid, id, userID, !paid,
	).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to update settlement: %w", classifyError(err))
	}

	// Nothing matched: either the row is gone or it already holds the target state.
	if _, getErr := s.getTransactionTx(ctx, q, userID, id); getErr != nil {
		return 0, getErr
	}
	if paid {
		return 0, fmt.Errorf("transaction %s: %w", id, common.ErrAlreadyPaid)
	}
	return 0, fmt.Errorf("transaction %s: %w", id, common.ErrNotPaid)
}

// DeleteTransaction removes one transaction.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, userID, id string) error {
	return s.deleteTransactionTx(ctx, s.db, userID, id)
}

func (s *SQLiteStorage) deleteTransactionTx(ctx context.Context, q queryable, userID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, "DELETE FROM transactions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", classifyError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}

	slog.Debug("Deleted transaction", "transaction_id", id, "user_id", userID)
	return nil
}

// CountTransactionsByAccount counts the rows that still reference an account.
func (s *SQLiteStorage) CountTransactionsByAccount(ctx context.Context, userID, accountID string) (int, error) {
	return s.countTransactionsByAccountTx(ctx, s.db, userID, accountID)
}

func (s *SQLiteStorage) countTransactionsByAccountTx(ctx context.Context, q queryable, userID, accountID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE user_id = ? AND account_id = ?",
		userID, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count account transactions: %w", classifyError(err))
	}
	return count, nil
}

// ListSettledByAccount returns every paid transaction linked to an account.
func (s *SQLiteStorage) ListSettledByAccount(ctx context.Context, userID, accountID string) ([]model.Transaction, error) {
	return s.listSettledByAccountTx(ctx, s.db, userID, accountID)
}

func (s *SQLiteStorage) listSettledByAccountTx(ctx context.Context, q queryable, userID, accountID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryTransactions(ctx, q,
		"SELECT "+transactionColumns+` FROM transactions
		WHERE user_id = ? AND account_id = ? AND is_paid = 1
		ORDER BY transaction_date, id`,
		userID, accountID)
}

// queryTransactions runs a SELECT of transactionColumns and scans every row.
func (s *SQLiteStorage) queryTransactions(ctx context.Context, q queryable, query string, args ...any) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", classifyError(err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := s.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStorage) scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn                                   model.Transaction
		txnType, date                         string
		paymentMethod, referenceMonth         sql.NullString
		parentID, accountID, transferID       sql.NullString
		currentInstallment, totalInstallments sql.NullInt64
		recurrenceDay                         sql.NullInt64
	)

	err := row.Scan(
		&txn.ID, &txn.UserID, &txn.Title, &txn.Amount, &txnType, &txn.Category, &date,
		&txn.IsFixed, &txn.IsPaid, &txn.IsInstallment, &currentInstallment, &totalInstallments,
		&paymentMethod, &parentID, &referenceMonth, &accountID,
		&recurrenceDay, &transferID, &txn.Version, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Type = model.TransactionType(txnType)
	txn.TransactionDate, err = model.ParseDate(date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %s has date %q", common.ErrDatabaseCorrupted, txn.ID, date)
	}
	if referenceMonth.Valid {
		m, err := model.ParseMonth(referenceMonth.String)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %s has reference month %q",
				common.ErrDatabaseCorrupted, txn.ID, referenceMonth.String)
		}
		txn.ReferenceMonth = &m
	}

	txn.PaymentMethod = paymentMethod.String
	txn.ParentTransactionID = stringPtr(parentID)
	txn.AccountID = stringPtr(accountID)
	txn.TransferID = stringPtr(transferID)
	txn.CurrentInstallment = intPtr(currentInstallment)
	txn.TotalInstallments = intPtr(totalInstallments)
	txn.RecurrenceDay = intPtr(recurrenceDay)

	return &txn, nil
}

func transactionArgs(txn *model.Transaction) []any {
	return []any{
		txn.ID, txn.UserID, txn.Title, txn.Amount.String(), string(txn.Type), txn.Category,
		model.FormatDate(txn.TransactionDate),
		txn.IsFixed, txn.IsPaid, txn.IsInstallment,
		nullInt(txn.CurrentInstallment), nullInt(txn.TotalInstallments),
		nullString(txn.PaymentMethod), txn.ParentTransactionID, nullMonth(txn.ReferenceMonth),
		txn.AccountID, nullInt(txn.RecurrenceDay), txn.TransferID,
		txn.Version, txn.CreatedAt,
	}
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullMonth(m *model.Month) any {
	if m == nil {
		return nil
	}
	return m.String()
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
