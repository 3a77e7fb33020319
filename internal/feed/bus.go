// Package feed broadcasts row-level change notifications to interested clients.
package feed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/model"
)

// Op is the kind of row change.
type Op string

// Row operations.
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Tables that emit changes.
const (
	TableTransactions = "transactions"
	TableAccounts     = "accounts"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Change describes one committed row change. Transaction or Account carries
// the new row for inserts and updates when the publisher has it at hand.
type Change struct {
	At          time.Time          `json:"at"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	Account     *model.Account     `json:"account,omitempty"`
	Op          Op                 `json:"op"`
	Table       string             `json:"table"`
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
}

// Bus fans changes out to subscribers. Delivery never blocks the publisher:
// a subscriber whose buffer is full misses the change and must re-fetch.
type Bus struct {
	subscribers map[chan Change]string
	mu          sync.RWMutex
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan Change]string)}
}

// Subscribe registers interest in one user's changes, or every user's when
// userID is empty. The returned function unsubscribes and closes the channel.
func (b *Bus) Subscribe(userID string, buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	ch := make(chan Change, buffer)

	b.mu.Lock()
	b.subscribers[ch] = userID
	total := len(b.subscribers)
	b.mu.Unlock()

	slog.Debug("Feed subscriber added", "user_id", userID, "total_subscribers", total)

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(ch) })
	}
}

func (b *Bus) unsubscribe(ch chan Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	userID := b.subscribers[ch]
	delete(b.subscribers, ch)
	close(ch)

	slog.Debug("Feed subscriber removed", "user_id", userID, "total_subscribers", len(b.subscribers))
}

// Publish delivers changes to every matching subscriber.
func (b *Bus) Publish(changes ...Change) {
	if b == nil || len(changes) == 0 {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	now := time.Now()
	for _, change := range changes {
		if change.At.IsZero() {
			change.At = now
		}
		for ch, userID := range b.subscribers {
			if userID != "" && userID != change.UserID {
				continue
			}
			select {
			case ch <- change:
			default:
				slog.Warn("Feed subscriber channel full, change dropped",
					"user_id", change.UserID,
					"table", change.Table,
					"id", change.ID)
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// TransactionChange builds a change carrying a transaction snapshot.
func TransactionChange(op Op, txn *model.Transaction) Change {
	c := Change{Op: op, Table: TableTransactions, ID: txn.ID, UserID: txn.UserID}
	if op != OpDelete {
		snapshot := *txn
		c.Transaction = &snapshot
	}
	return c
}

// AccountChange builds a change carrying an account snapshot.
func AccountChange(op Op, account *model.Account) Change {
	c := Change{Op: op, Table: TableAccounts, ID: account.ID, UserID: account.UserID}
	if op != OpDelete {
		snapshot := *account
		c.Account = &snapshot
	}
	return c
}
