package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

// Errors for operations that make no sense inside a transaction.
var (
	ErrMigrateInTx = errors.New("migrations cannot be run within a transaction")
	ErrNestedTx    = errors.New("nested transactions not supported")
	ErrCloseTx     = errors.New("transactions must be committed or rolled back, not closed")
)

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classifyError(err))
	}
	return nil
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqliteTransaction) ListTransactions(ctx context.Context, userID string, filter service.TransactionFilter) (*service.TransactionPage, error) {
	return t.storage.listTransactionsTx(ctx, t.tx, userID, filter)
}

func (t *sqliteTransaction) GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error) {
	return t.storage.getTransactionTx(ctx, t.tx, userID, id)
}

func (t *sqliteTransaction) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	return t.storage.insertTransactionTx(ctx, t.tx, txn)
}

func (t *sqliteTransaction) UpdateIfVersion(ctx context.Context, userID, id string, expectedVersion int, patch model.TransactionPatch) (int, error) {
	return t.storage.updateIfVersionTx(ctx, t.tx, userID, id, expectedVersion, patch)
}

func (t *sqliteTransaction) UpdateTransactions(ctx context.Context, userID string, ids []string, patch model.TransactionPatch) (int, error) {
	return t.storage.updateTransactionsTx(ctx, t.tx, userID, ids, patch)
}

func (t *sqliteTransaction) SetPaid(ctx context.Context, userID, id string, paid bool) (int, error) {
	return t.storage.setPaidTx(ctx, t.tx, userID, id, paid)
}

func (t *sqliteTransaction) DeleteTransaction(ctx context.Context, userID, id string) error {
	return t.storage.deleteTransactionTx(ctx, t.tx, userID, id)
}

func (t *sqliteTransaction) CountTransactionsByAccount(ctx context.Context, userID, accountID string) (int, error) {
	return t.storage.countTransactionsByAccountTx(ctx, t.tx, userID, accountID)
}

func (t *sqliteTransaction) ListSettledByAccount(ctx context.Context, userID, accountID string) ([]model.Transaction, error) {
	return t.storage.listSettledByAccountTx(ctx, t.tx, userID, accountID)
}

func (t *sqliteTransaction) ListTemplates(ctx context.Context, userID string) ([]model.Transaction, error) {
	return t.storage.listTemplatesTx(ctx, t.tx, userID)
}

func (t *sqliteTransaction) TemplatesWithInstance(ctx context.Context, userID string, month model.Month, templateIDs []string) (map[string]bool, error) {
	return t.storage.templatesWithInstanceTx(ctx, t.tx, userID, month, templateIDs)
}

func (t *sqliteTransaction) InsertInstances(ctx context.Context, instances []model.Transaction) ([]string, error) {
	return t.storage.insertInstancesTx(ctx, t.tx, instances)
}

func (t *sqliteTransaction) ListInstances(ctx context.Context, userID, templateID string, fromMonth *model.Month) ([]model.Transaction, error) {
	return t.storage.listInstancesTx(ctx, t.tx, userID, templateID, fromMonth)
}

func (t *sqliteTransaction) DeleteInstances(ctx context.Context, userID, templateID string) (int, error) {
	return t.storage.deleteInstancesTx(ctx, t.tx, userID, templateID)
}

func (t *sqliteTransaction) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	return t.storage.listAccountsTx(ctx, t.tx, userID)
}

func (t *sqliteTransaction) GetAccount(ctx context.Context, userID, id string) (*model.Account, error) {
	return t.storage.getAccountTx(ctx, t.tx, userID, id)
}

func (t *sqliteTransaction) InsertAccount(ctx context.Context, account *model.Account) error {
	return t.storage.insertAccountTx(ctx, t.tx, account)
}

func (t *sqliteTransaction) UpdateAccount(ctx context.Context, userID, id string, patch model.AccountPatch) error {
	return t.storage.updateAccountTx(ctx, t.tx, userID, id, patch)
}

func (t *sqliteTransaction) DeleteAccount(ctx context.Context, userID, id string) error {
	return t.storage.deleteAccountTx(ctx, t.tx, userID, id)
}

func (t *sqliteTransaction) AdjustBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	return t.storage.adjustBalanceTx(ctx, t.tx, userID, accountID, delta)
}

func (t *sqliteTransaction) SetBalance(ctx context.Context, userID, accountID string, balance decimal.Decimal) error {
	return t.storage.setBalanceTx(ctx, t.tx, userID, accountID, balance)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	return ErrMigrateInTx
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	return nil, ErrNestedTx
}

func (t *sqliteTransaction) Close() error {
	return ErrCloseTx
}

var (
	_ service.Storage     = (*SQLiteStorage)(nil)
	_ service.Transaction = (*sqliteTransaction)(nil)
)
