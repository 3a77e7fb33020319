package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/service"
	"github.com/Veraticus/ledger-must-balance/internal/testutil"
	"github.com/stretchr/testify/require"
)

const user = testutil.DefaultUser

// fixedNow is the pinned clock of every engine test.
var fixedNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	ledger *Ledger
	db     *testutil.TestDB
	bus    *feed.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.SetupTestDB(t)
	bus := feed.NewBus()

	return &harness{
		ledger: NewWithConfig(db.Storage, bus, testConfig()),
		db:     db,
		bus:    bus,
	}
}

func testConfig() Config {
	config := DefaultConfig()
	config.Location = time.UTC
	config.Now = func() time.Time { return fixedNow }
	config.Retry = service.RetryOptions{MaxAttempts: 1}
	return config
}

// faulty returns a ledger over the harness database whose writes fail as
// configured on the returned storage. It publishes on the harness bus.
func (h *harness) faulty() (*Ledger, *testutil.FaultyStorage) {
	faults := testutil.NewFaultyStorage(h.db.Storage)
	return NewWithConfig(faults, h.bus, testConfig()), faults
}

func month(year int, m time.Month) model.Month {
	return model.NewMonth(year, m)
}

// chain creates a template dated December 2023 with instances for January
// through March 2024 and returns them in that order.
func (h *harness) chain(t *testing.T, b *testutil.TransactionBuilder) (*model.Transaction, []model.Transaction) {
	t.Helper()
	ctx := context.Background()

	template := h.db.Insert(b.Fixed().On(testutil.Date(2023, time.December, 5)))
	_, err := h.ledger.GenerateRange(ctx, user, month(2024, time.January), month(2024, time.March), nil)
	require.NoError(t, err)

	instances, err := h.db.Storage.ListInstances(ctx, user, template.ID, nil)
	require.NoError(t, err)
	require.Len(t, instances, 3)
	return template, instances
}

// drain collects every change currently buffered on ch.
func drain(ch <-chan feed.Change) []feed.Change {
	var changes []feed.Change
	for {
		select {
		case c := <-ch:
			changes = append(changes, c)
		default:
			return changes
		}
	}
}
