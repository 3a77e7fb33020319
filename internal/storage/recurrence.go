package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/ledger-must-balance/internal/model"
)

// instanceBatchSize bounds the number of rows per multi-row INSERT so the
// statement stays well under SQLite's bound parameter limit.
const instanceBatchSize = 500

// ListTemplates returns the user's recurrence templates: fixed rows with no parent.
func (s *SQLiteStorage) ListTemplates(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.listTemplatesTx(ctx, s.db, userID)
}

func (s *SQLiteStorage) listTemplatesTx(ctx context.Context, q queryable, userID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	return s.queryTransactions(ctx, q,
		"SELECT "+transactionColumns+` FROM transactions
		WHERE user_id = ? AND is_fixed = 1 AND parent_transaction_id IS NULL
		ORDER BY transaction_date, id`,
		userID)
}

// TemplatesWithInstance reports which of templateIDs already have an instance
// tagged with month. It issues one query for the whole set.
func (s *SQLiteStorage) TemplatesWithInstance(ctx context.Context, userID string, month model.Month, templateIDs []string) (map[string]bool, error) {
	return s.templatesWithInstanceTx(ctx, s.db, userID, month, templateIDs)
}

func (s *SQLiteStorage) templatesWithInstanceTx(ctx context.Context, q queryable, userID string, month model.Month, templateIDs []string) (map[string]bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	existing := make(map[string]bool, len(templateIDs))
	if len(templateIDs) == 0 {
		return existing, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(templateIDs)), ",")
	args := make([]any, 0, len(templateIDs)+2)
	args = append(args, userID, month.String())
	for _, id := range templateIDs {
		args = append(args, id)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT parent_transaction_id FROM transactions
		WHERE user_id = ? AND reference_month = ?
		  AND parent_transaction_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing instances: %w", classifyError(err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var parentID string
		if err := rows.Scan(&parentID); err != nil {
			return nil, fmt.Errorf("failed to scan instance parent: %w", err)
		}
		existing[parentID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}
	return existing, nil
}

// InsertInstances writes generated instances in batched multi-row inserts.
// Rows colliding with an existing (parent, reference month) pair are skipped
// by the unique index; the ids of the rows actually written are returned.
func (s *SQLiteStorage) InsertInstances(ctx context.Context, instances []model.Transaction) ([]string, error) {
	var inserted []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = s.insertInstancesTx(ctx, tx, instances)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *SQLiteStorage) insertInstancesTx(ctx context.Context, q queryable, instances []model.Transaction) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, nil
	}

	for i := range instances {
		if instances[i].ParentTransactionID == nil || instances[i].ReferenceMonth == nil {
			return nil, fmt.Errorf("%w: instance needs a parent and a reference month", ErrNilParameter)
		}
		if err := ValidateTransaction(&instances[i]); err != nil {
			return nil, err
		}
		s.prepareInsert(&instances[i])
	}

	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?,", 20), ",") + ")"
	inserted := make([]string, 0, len(instances))

	for start := 0; start < len(instances); start += instanceBatchSize {
		end := min(start+instanceBatchSize, len(instances))
		batch := instances[start:end]

		values := make([]string, len(batch))
		args := make([]any, 0, len(batch)*20)
		for i := range batch {
			values[i] = rowPlaceholder
			args = append(args, transactionArgs(&batch[i])...)
		}

		ids, err := s.insertReturningIDs(ctx, q,
			"INSERT INTO transactions ("+transactionColumns+") VALUES "+
				strings.Join(values, ", ")+
				" ON CONFLICT DO NOTHING RETURNING id",
			args)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, ids...)
	}

	if skipped := len(instances) - len(inserted); skipped > 0 {
		slog.Debug("Skipped instances that already exist", "count", skipped)
	}
	return inserted, nil
}

func (s *SQLiteStorage) insertReturningIDs(ctx context.Context, q queryable, query string, args []any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert instances: %w", classifyError(err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan inserted id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to insert instances: %w", classifyError(err))
	}
	return ids, nil
}

// ListInstances returns the instances of a template, optionally restricted to
// reference months on or after fromMonth.
func (s *SQLiteStorage) ListInstances(ctx context.Context, userID, templateID string, fromMonth *model.Month) ([]model.Transaction, error) {
	return s.listInstancesTx(ctx, s.db, userID, templateID, fromMonth)
}

func (s *SQLiteStorage) listInstancesTx(ctx context.Context, q queryable, userID, templateID string, fromMonth *model.Month) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(templateID, "templateID"); err != nil {
		return nil, err
	}

	query := "SELECT " + transactionColumns + " FROM transactions WHERE user_id = ? AND parent_transaction_id = ?"
	args := []any{userID, templateID}
	if fromMonth != nil {
		// YYYY-MM sorts lexically in calendar order.
		query += " AND reference_month >= ?"
		args = append(args, fromMonth.String())
	}
	query += " ORDER BY reference_month, id"

	return s.queryTransactions(ctx, q, query, args...)
}

// DeleteInstances removes every instance of a template.
func (s *SQLiteStorage) DeleteInstances(ctx context.Context, userID, templateID string) (int, error) {
	return s.deleteInstancesTx(ctx, s.db, userID, templateID)
}

func (s *SQLiteStorage) deleteInstancesTx(ctx context.Context, q queryable, userID, templateID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(templateID, "templateID"); err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx,
		"DELETE FROM transactions WHERE user_id = ? AND parent_transaction_id = ?",
		userID, templateID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete instances: %w", classifyError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
