package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

// ErrInjected is returned by calls a FaultyStorage was told to fail.
var ErrInjected = errors.New("injected storage failure")

// FaultyStorage wraps a Storage and fails chosen write calls made inside
// database transactions, so tests can interrupt a multi-step write midway.
type FaultyStorage struct {
	service.Storage
	fail  map[string]int
	errs  map[string]error
	calls map[string]int
	mu    sync.Mutex
}

// NewFaultyStorage wraps inner. Nothing fails until FailOn is called.
func NewFaultyStorage(inner service.Storage) *FaultyStorage {
	return &FaultyStorage{
		Storage: inner,
		fail:    make(map[string]int),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// FailOn makes the n-th call (1-based) of method fail with ErrInjected.
// Supported methods are GetAccount, InsertTransaction, SetPaid and AdjustBalance.
func (f *FaultyStorage) FailOn(method string, n int) *FaultyStorage {
	return f.FailWith(method, n, nil)
}

// FailWith is FailOn returning err instead of ErrInjected.
func (f *FaultyStorage) FailWith(method string, n int, err error) *FaultyStorage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = n
	f.errs[method] = err
	return f
}

// Calls reports how often method was reached inside transactions.
func (f *FaultyStorage) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FaultyStorage) hit(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if n, ok := f.fail[method]; ok && f.calls[method] == n {
		if err := f.errs[method]; err != nil {
			return err
		}
		return fmt.Errorf("%w: %s call %d", ErrInjected, method, n)
	}
	return nil
}

// BeginTx wraps the underlying transaction with the configured faults.
func (f *FaultyStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	tx, err := f.Storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Transaction: tx, faults: f}, nil
}

type faultyTx struct {
	service.Transaction
	faults *FaultyStorage
}

func (t *faultyTx) GetAccount(ctx context.Context, userID, id string) (*model.Account, error) {
	if err := t.faults.hit("GetAccount"); err != nil {
		return nil, err
	}
	return t.Transaction.GetAccount(ctx, userID, id)
}

func (t *faultyTx) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := t.faults.hit("InsertTransaction"); err != nil {
		return err
	}
	return t.Transaction.InsertTransaction(ctx, txn)
}

func (t *faultyTx) SetPaid(ctx context.Context, userID, id string, paid bool) (int, error) {
	if err := t.faults.hit("SetPaid"); err != nil {
		return 0, err
	}
	return t.Transaction.SetPaid(ctx, userID, id, paid)
}

func (t *faultyTx) AdjustBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := t.faults.hit("AdjustBalance"); err != nil {
		return decimal.Zero, err
	}
	return t.Transaction.AdjustBalance(ctx, userID, accountID, delta)
}
