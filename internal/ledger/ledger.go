// Package ledger implements the ledger engine: recurrence generation,
// version-gated editing, atomic settlement, reconciliation and transfers.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/service"
)

// Ledger orchestrates ledger operations over a Storage.
type Ledger struct {
	storage  service.Storage
	feed     *feed.Bus
	loc      *time.Location
	now      func() time.Time
	retry    service.RetryOptions
	pageSize int
}

// Config holds configuration options for the ledger engine.
type Config struct {
	// Location anchors calendar dates such as "today" and month boundaries.
	Location *time.Location
	// Now is the clock; tests pin it.
	Now func() time.Time
	// Retry applies to idempotent operations only.
	Retry    service.RetryOptions
	PageSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Location: time.Local,
		Now:      time.Now,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
		PageSize: 50,
	}
}

// New creates a ledger with the default configuration. bus may be nil.
func New(storage service.Storage, bus *feed.Bus) *Ledger {
	return NewWithConfig(storage, bus, DefaultConfig())
}

// NewWithConfig creates a ledger with custom configuration.
func NewWithConfig(storage service.Storage, bus *feed.Bus, config Config) *Ledger {
	defaults := DefaultConfig()
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}

	return &Ledger{
		storage:  storage,
		feed:     bus,
		loc:      config.Location,
		now:      config.Now,
		retry:    config.Retry,
		pageSize: config.PageSize,
	}
}

// Location returns the zone calendar dates are interpreted in.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

// Feed returns the change bus, which may be nil.
func (l *Ledger) Feed() *feed.Bus {
	return l.feed
}

// today returns the current calendar date in the ledger's zone.
func (l *Ledger) today() time.Time {
	y, m, d := l.now().In(l.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, l.loc)
}

// inTx runs fn in one database transaction and publishes the changes it
// reports only after the commit succeeded.
func (l *Ledger) inTx(ctx context.Context, fn func(tx service.Transaction) ([]feed.Change, error)) error {
	tx, err := l.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit is a no-op error we ignore.
		_ = tx.Rollback()
	}()

	changes, err := fn(tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(changes) > 0 {
		l.feed.Publish(changes...)
		slog.Debug("Published changes", "count", len(changes))
	}
	return nil
}
