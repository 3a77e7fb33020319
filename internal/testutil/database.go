// Package testutil provides database fixtures for ledger tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/Veraticus/ledger-must-balance/internal/storage"
	"github.com/shopspring/decimal"
)

// DefaultUser owns the fixtures unless a builder says otherwise.
const DefaultUser = "test-user"

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database with calendar dates in UTC.
// It automatically handles migrations and cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:", storage.WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// CreateAccount inserts an account with the given balance written directly.
func (db *TestDB) CreateAccount(name, balance string) *model.Account {
	db.t.Helper()

	account := &model.Account{
		UserID:  DefaultUser,
		Name:    name,
		Balance: decimal.RequireFromString(balance),
	}
	if err := db.Storage.InsertAccount(context.Background(), account); err != nil {
		db.t.Fatalf("failed to create account %q: %v", name, err)
	}
	return account
}

// Insert stores the transaction a builder produced and returns it with its id.
func (db *TestDB) Insert(b *TransactionBuilder) *model.Transaction {
	db.t.Helper()

	txn := b.Build()
	if err := db.Storage.InsertTransaction(context.Background(), &txn); err != nil {
		db.t.Fatalf("failed to insert transaction %q: %v", txn.Title, err)
	}
	return &txn
}

// MustGet reloads a transaction or fails the test.
func (db *TestDB) MustGet(id string) *model.Transaction {
	db.t.Helper()

	txn, err := db.Storage.GetTransaction(context.Background(), DefaultUser, id)
	if err != nil {
		db.t.Fatalf("failed to get transaction %s: %v", id, err)
	}
	return txn
}

// Balance reloads an account balance or fails the test.
func (db *TestDB) Balance(accountID string) decimal.Decimal {
	db.t.Helper()

	account, err := db.Storage.GetAccount(context.Background(), DefaultUser, accountID)
	if err != nil {
		db.t.Fatalf("failed to get account %s: %v", accountID, err)
	}
	return account.Balance
}

// WithTransaction executes the given function within a database transaction.
// The transaction is automatically rolled back after the function completes.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	ctx := context.Background()
	tx, err := db.Storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// TransactionBuilder provides a fluent interface for constructing test transactions.
type TransactionBuilder struct {
	txn model.Transaction
}

// NewTransaction starts a pending expense of 10 dated 2024-01-15.
func NewTransaction(title string) *TransactionBuilder {
	return &TransactionBuilder{txn: model.Transaction{
		UserID:          DefaultUser,
		Title:           title,
		Amount:          decimal.NewFromInt(10),
		Type:            model.TypeExpense,
		Category:        "General",
		TransactionDate: Date(2024, time.January, 15),
	}}
}

// Amount sets the amount from its decimal string.
func (b *TransactionBuilder) Amount(amount string) *TransactionBuilder {
	b.txn.Amount = decimal.RequireFromString(amount)
	return b
}

// Income marks the transaction as income.
func (b *TransactionBuilder) Income() *TransactionBuilder {
	b.txn.Type = model.TypeIncome
	return b
}

// On sets the transaction date.
func (b *TransactionBuilder) On(date time.Time) *TransactionBuilder {
	b.txn.TransactionDate = date
	return b
}

// Account links the transaction to an account.
func (b *TransactionBuilder) Account(accountID string) *TransactionBuilder {
	b.txn.AccountID = model.StringPtr(accountID)
	return b
}

// Paid marks the transaction as settled.
func (b *TransactionBuilder) Paid() *TransactionBuilder {
	b.txn.IsPaid = true
	return b
}

// Fixed makes the transaction a recurrence template.
func (b *TransactionBuilder) Fixed() *TransactionBuilder {
	b.txn.IsFixed = true
	return b
}

// RecurrenceDay sets the day instances land on.
func (b *TransactionBuilder) RecurrenceDay(day int) *TransactionBuilder {
	b.txn.RecurrenceDay = model.IntPtr(day)
	return b
}

// User overrides the owner.
func (b *TransactionBuilder) User(userID string) *TransactionBuilder {
	b.txn.UserID = userID
	return b
}

// Build returns a copy of the transaction under construction.
func (b *TransactionBuilder) Build() model.Transaction {
	return b.txn
}

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
