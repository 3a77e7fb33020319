package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMonth_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account := h.db.CreateAccount("Checking", "0")
	template := h.db.Insert(testutil.NewTransaction("Rent").
		Amount("1200").
		Account(account.ID).
		Fixed().
		On(testutil.Date(2024, time.January, 5)))

	first, err := h.ledger.GenerateMonth(ctx, user, month(2024, time.February))
	require.NoError(t, err)
	assert.Len(t, first.Created, 1)
	assert.Equal(t, 1, first.Templates)

	second, err := h.ledger.GenerateMonth(ctx, user, month(2024, time.February))
	require.NoError(t, err)
	assert.Empty(t, second.Created)

	instances, err := h.db.Storage.ListInstances(ctx, user, template.ID, nil)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	instance := instances[0]
	assert.Equal(t, first.Created[0], instance.ID)
	assert.Equal(t, "Rent", instance.Title)
	assert.True(t, template.Amount.Equal(instance.Amount))
	assert.Equal(t, "2024-02-05", model.FormatDate(instance.TransactionDate))
	assert.Equal(t, "2024-02", instance.ReferenceMonth.String())
	assert.Equal(t, template.ID, *instance.ParentTransactionID)
	assert.Equal(t, account.ID, *instance.AccountID)
	assert.True(t, instance.IsFixed)
	assert.False(t, instance.IsPaid)
	assert.Equal(t, 1, instance.Version)
}

func TestGenerateMonth_SafeDay(t *testing.T) {
	tests := []struct {
		name     string
		template time.Time
		month    model.Month
		want     string
	}{
		{name: "non-leap February", template: testutil.Date(2022, time.December, 31), month: month(2023, time.February), want: "2023-02-28"},
		{name: "leap February", template: testutil.Date(2023, time.December, 31), month: month(2024, time.February), want: "2024-02-29"},
		{name: "thirty day month", template: testutil.Date(2024, time.January, 31), month: month(2024, time.April), want: "2024-04-30"},
		{name: "fits as is", template: testutil.Date(2024, time.January, 31), month: month(2024, time.March), want: "2024-03-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			h.db.Insert(testutil.NewTransaction("Gym").Fixed().RecurrenceDay(31).On(tt.template))

			result, err := h.ledger.GenerateMonth(ctx, user, tt.month)
			require.NoError(t, err)
			require.Len(t, result.Created, 1)

			assert.Equal(t, tt.want, model.FormatDate(h.db.MustGet(result.Created[0]).TransactionDate))
		})
	}
}

func TestGenerateMonth_RecurrenceDayFallsBackToTemplateDate(t *testing.T) {
	h := newHarness(t)
	h.db.Insert(testutil.NewTransaction("Salary").Income().Fixed().On(testutil.Date(2024, time.January, 30)))

	result, err := h.ledger.GenerateMonth(context.Background(), user, month(2024, time.February))
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "2024-02-29", model.FormatDate(h.db.MustGet(result.Created[0]).TransactionDate))
}

func TestGenerateMonth_SkipsTemplatesNotYetDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.db.Insert(testutil.NewTransaction("This month").Fixed().On(testutil.Date(2024, time.March, 1)))
	h.db.Insert(testutil.NewTransaction("Next month").Fixed().On(testutil.Date(2024, time.April, 1)))
	h.db.Insert(testutil.NewTransaction("One-off").On(testutil.Date(2024, time.January, 1)))

	result, err := h.ledger.GenerateMonth(ctx, user, month(2024, time.March))
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Equal(t, 2, result.Templates)
}

func TestGenerateMonth_PublishesInserts(t *testing.T) {
	h := newHarness(t)
	changes, unsubscribe := h.bus.Subscribe(user, 10)
	defer unsubscribe()

	h.db.Insert(testutil.NewTransaction("Rent").Fixed().On(testutil.Date(2024, time.January, 5)))
	result, err := h.ledger.GenerateMonth(context.Background(), user, month(2024, time.February))
	require.NoError(t, err)

	got := drain(changes)
	require.Len(t, got, 1)
	assert.Equal(t, feed.OpInsert, got[0].Op)
	assert.Equal(t, result.Created[0], got[0].ID)
	require.NotNil(t, got[0].Transaction)
}

func TestGenerateRange(t *testing.T) {
	h := newHarness(t)
	h.db.Insert(testutil.NewTransaction("Rent").Fixed().On(testutil.Date(2023, time.December, 5)))

	var seen []string
	results, err := h.ledger.GenerateRange(context.Background(), user,
		month(2024, time.January), month(2024, time.March),
		func(r *GenerationResult) { seen = append(seen, r.Month.String()) })
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, seen)

	_, err = h.ledger.GenerateRange(context.Background(), user, month(2024, time.March), month(2024, time.January), nil)
	assert.Error(t, err)
}

func TestLoadMonth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.db.Insert(testutil.NewTransaction("Rent").Fixed().On(testutil.Date(2024, time.January, 5)))
	h.db.Insert(testutil.NewTransaction("Coffee").Amount("4.50").On(testutil.Date(2024, time.February, 10)))
	h.db.Insert(testutil.NewTransaction("Coffee").Amount("4.50").On(testutil.Date(2024, time.February, 10)))
	h.db.Insert(testutil.NewTransaction("Elsewhere").On(testutil.Date(2024, time.March, 10)))

	view, err := h.ledger.LoadMonth(ctx, user, month(2024, time.February), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Generated)
	assert.Equal(t, 3, view.Page.Total)
	assert.Equal(t, 2, view.Duplicates.Count)

	again, err := h.ledger.LoadMonth(ctx, user, month(2024, time.February), 0, 0)
	require.NoError(t, err)
	assert.Zero(t, again.Generated)
	assert.Equal(t, 3, again.Page.Total)
}
