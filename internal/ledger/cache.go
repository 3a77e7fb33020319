package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
)

// MonthLoader loads a month view from the authoritative store.
type MonthLoader interface {
	LoadMonth(ctx context.Context, userID string, month model.Month, limit, offset int) (*MonthView, error)
}

type cacheKey struct {
	userID string
	month  model.Month
}

// MonthCache owns the first page of each viewed month. Entries are merged
// with feed snapshots while the cached page holds the complete month and are
// dropped otherwise, so the next Get re-fetches.
//
// Each user has a generation bumped by every invalidation and applied change.
// A load only populates the cache if its user's generation did not move while
// it ran.
type MonthCache struct {
	loader      MonthLoader
	entries     map[cacheKey]*MonthView
	generations map[string]uint64
	mu          sync.Mutex
	limit       int
}

// NewMonthCache creates a cache that loads pages of up to limit rows.
func NewMonthCache(loader MonthLoader, limit int) *MonthCache {
	return &MonthCache{
		loader:  loader,
		entries:     make(map[cacheKey]*MonthView),
		generations: make(map[string]uint64),
		limit:       limit,
	}
}

// Get returns the cached view of month, loading it on a miss.
func (c *MonthCache) Get(ctx context.Context, userID string, month model.Month) (*MonthView, error) {
	key := cacheKey{userID: userID, month: month}

	c.mu.Lock()
	if view, ok := c.entries[key]; ok {
		defer c.mu.Unlock()
		return cloneView(view), nil
	}
	generation := c.generations[userID]
	c.mu.Unlock()

	view, err := c.loader.LoadMonth(ctx, userID, month, c.limit, 0)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generations[userID] == generation {
		c.entries[key] = cloneView(view)
	} else {
		slog.Debug("Discarding month loaded across a write", "user_id", userID, "month", month)
	}
	c.mu.Unlock()
	return view, nil
}

// Invalidate drops every cached month of the user.
func (c *MonthCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++
	for key := range c.entries {
		if key.userID == userID {
			delete(c.entries, key)
		}
	}
}

// InvalidateMonth drops one cached month.
func (c *MonthCache) InvalidateMonth(userID string, month model.Month) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++
	delete(c.entries, cacheKey{userID: userID, month: month})
}

// Len is the number of cached months.
func (c *MonthCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Apply folds one change into the cache. Inserts merge by id and are ignored
// when the id is already present, updates replace by id and deletes remove.
// Changes without a snapshot invalidate the user's months.
func (c *MonthCache) Apply(change feed.Change) {
	if change.Table != feed.TableTransactions {
		return
	}
	if change.Op != feed.OpDelete && change.Transaction == nil {
		c.Invalidate(change.UserID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[change.UserID]++

	for key, view := range c.entries {
		if key.userID != change.UserID {
			continue
		}
		if !c.merge(key, view, change) {
			delete(c.entries, key)
		}
	}
}

// merge applies change to one entry and reports whether the entry is still usable.
func (c *MonthCache) merge(key cacheKey, view *MonthView, change feed.Change) bool {
	page := view.Page
	complete := page.Offset == 0 && len(page.Transactions) == page.Total
	index := indexOf(page.Transactions, change.ID)

	switch change.Op {
	case feed.OpDelete:
		if index < 0 {
			return true
		}
		if !complete {
			return false
		}
		page.Transactions = append(page.Transactions[:index], page.Transactions[index+1:]...)
		page.Total--

	case feed.OpInsert, feed.OpUpdate:
		belongs := model.MonthOf(change.Transaction.TransactionDate) == key.month
		if change.Op == feed.OpInsert && index >= 0 {
			return true
		}
		if !belongs && index < 0 {
			return true
		}
		if !complete {
			return false
		}
		if index >= 0 {
			page.Transactions = append(page.Transactions[:index], page.Transactions[index+1:]...)
			page.Total--
		}
		if belongs {
			if c.limit > 0 && len(page.Transactions) >= c.limit {
				return false
			}
			page.Transactions = append(page.Transactions, *change.Transaction)
			page.Total++
			sortPage(page.Transactions)
		}

	default:
		return false
	}

	view.Duplicates = FindDuplicates(page.Transactions).Summary()
	return true
}

// Watch applies changes from the bus until ctx is done.
func (c *MonthCache) Watch(ctx context.Context, bus *feed.Bus) {
	changes, unsubscribe := bus.Subscribe("", feed.DefaultBuffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			c.Apply(change)
			slog.Debug("Month cache applied change", "op", change.Op, "id", change.ID)
		}
	}
}

func indexOf(txns []model.Transaction, id string) int {
	for i := range txns {
		if txns[i].ID == id {
			return i
		}
	}
	return -1
}

// sortPage keeps the store's listing order: newest date first.
func sortPage(txns []model.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].TransactionDate.Equal(txns[j].TransactionDate) {
			return txns[i].TransactionDate.After(txns[j].TransactionDate)
		}
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.After(txns[j].CreatedAt)
		}
		return txns[i].ID < txns[j].ID
	})
}

func cloneView(view *MonthView) *MonthView {
	clone := *view
	if view.Page != nil {
		page := *view.Page
		page.Transactions = append([]model.Transaction(nil), view.Page.Transactions...)
		clone.Page = &page
	}
	clone.Duplicates.IDs = append([]string(nil), view.Duplicates.IDs...)
	return &clone
}

var _ MonthLoader = (*Ledger)(nil)
