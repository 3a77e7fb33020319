// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionFilter selects a page of a user's transactions by inclusive calendar dates.
type TransactionFilter struct {
	StartDate time.Time
	EndDate   time.Time
	Limit     int
	Offset    int
}

// TransactionPage is one page of a date-range listing.
type TransactionPage struct {
	Transactions []model.Transaction `json:"transactions"`
	Total        int                 `json:"total"`
	Limit        int                 `json:"limit"`
	Offset       int                 `json:"offset"`
}

// Storage defines the contract for our persistence layer. Every read and write
// is scoped to the owning user.
type Storage interface {
	// Transaction operations
	ListTransactions(ctx context.Context, userID string, filter TransactionFilter) (*TransactionPage, error)
	GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error)
	InsertTransaction(ctx context.Context, txn *model.Transaction) error
	// UpdateIfVersion is the compare-and-swap primitive: it applies patch only
	// while the row is still at expectedVersion and returns the new version,
	// or a *common.ConflictError when another writer got there first.
	UpdateIfVersion(ctx context.Context, userID, id string, expectedVersion int, patch model.TransactionPatch) (int, error)
	// UpdateTransactions applies patch to every listed row, bumping each version by one.
	UpdateTransactions(ctx context.Context, userID string, ids []string, patch model.TransactionPatch) (int, error)
	// SetPaid flips the settlement flag only if it currently holds the opposite
	// value, returning the new version or ErrAlreadyPaid / ErrNotPaid.
	SetPaid(ctx context.Context, userID, id string, paid bool) (int, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	CountTransactionsByAccount(ctx context.Context, userID, accountID string) (int, error)
	ListSettledByAccount(ctx context.Context, userID, accountID string) ([]model.Transaction, error)

	// Recurrence operations
	ListTemplates(ctx context.Context, userID string) ([]model.Transaction, error)
	TemplatesWithInstance(ctx context.Context, userID string, month model.Month, templateIDs []string) (map[string]bool, error)
	InsertInstances(ctx context.Context, instances []model.Transaction) ([]string, error)
	ListInstances(ctx context.Context, userID, templateID string, fromMonth *model.Month) ([]model.Transaction, error)
	DeleteInstances(ctx context.Context, userID, templateID string) (int, error)

	// Account operations
	ListAccounts(ctx context.Context, userID string) ([]model.Account, error)
	GetAccount(ctx context.Context, userID, id string) (*model.Account, error)
	InsertAccount(ctx context.Context, account *model.Account) error
	UpdateAccount(ctx context.Context, userID, id string, patch model.AccountPatch) error
	DeleteAccount(ctx context.Context, userID, id string) error
	// AdjustBalance adds delta to one account row and returns the new balance.
	AdjustBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) (decimal.Decimal, error)
	SetBalance(ctx context.Context, userID, accountID string, balance decimal.Decimal) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
