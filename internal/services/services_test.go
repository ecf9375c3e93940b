package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Imaginaryverse/spending-habits/internal/amqp"
	"github.com/Imaginaryverse/spending-habits/internal/core"
	"github.com/Imaginaryverse/spending-habits/internal/storage/memory"
)

var ref = time.Date(2025, 3, 20, 15, 30, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events []amqp.SpendingEvent
	err    error
}

func (p *fakePublisher) PublishSpendingEvent(_ context.Context, evt *amqp.SpendingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *evt)
	return nil
}

type invalidations []string

func (i *invalidations) Invalidate(userID string) { *i = append(*i, userID) }

func newItem(title string, amount int64, at time.Time) core.SpendingItem {
	return core.SpendingItem{UserID: "u1", CategoryID: "food", Title: title, Amount: amount, CreatedAt: at}
}

func TestSpendingServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	pub := &fakePublisher{}
	var inv invalidations
	svc := NewSpendingService(store, pub, nil, &inv)

	created, err := svc.Create(ctx, newItem("  Lunch  ", 120, ref))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Lunch", created.Title)
	assert.Equal(t, "Food", created.CategoryName)

	created.Amount = 150
	updated, err := svc.Update(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, int64(150), updated.Amount)

	require.NoError(t, svc.Delete(ctx, "u1", created.ID))
	_, err = svc.Get(ctx, "u1", created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.Len(t, pub.events, 3)
	assert.Equal(t, amqp.EventItemCreated, pub.events[0].Type)
	assert.Equal(t, amqp.EventItemUpdated, pub.events[1].Type)
	assert.Equal(t, amqp.EventItemDeleted, pub.events[2].Type)
	assert.Equal(t, int64(150), pub.events[2].Amount)
	assert.Equal(t, invalidations{"u1", "u1", "u1"}, inv)
}

func TestSpendingServiceRejects(t *testing.T) {
	ctx := context.Background()
	svc := NewSpendingService(memory.New(nil), nil, nil)

	tests := []struct {
		name string
		item core.SpendingItem
		want error
	}{
		{"zero amount", newItem("Lunch", 0, ref), core.ErrInvalidAmount},
		{"blank title", newItem("   ", 10, ref), core.ErrEmptyTitle},
		{"long title", newItem("abcdefghijklmnopqrstu", 10, ref), core.ErrTitleTooLong},
		{"no date", newItem("Lunch", 10, time.Time{}), core.ErrInvalidDate},
		{"unknown category", core.SpendingItem{UserID: "u1", CategoryID: "boats", Title: "Boat", Amount: 10, CreatedAt: ref}, ErrUnknownCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.item)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}

	_, err := svc.Update(ctx, newItem("Lunch", 10, ref))
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "u1", "missing"), core.ErrNotFound)
}

func TestSpendingServiceIgnoresPublishFailure(t *testing.T) {
	svc := NewSpendingService(memory.New(nil), &fakePublisher{err: errors.New("broker down")}, nil)
	_, err := svc.Create(context.Background(), newItem("Lunch", 10, ref))
	assert.NoError(t, err)
}

func TestSpendingServiceScopesToOwner(t *testing.T) {
	ctx := context.Background()
	svc := NewSpendingService(memory.New(nil), nil, nil)
	created, err := svc.Create(ctx, newItem("Lunch", 10, ref))
	require.NoError(t, err)

	other := created
	other.UserID = "u2"
	_, err = svc.Update(ctx, other)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "u2", created.ID), core.ErrNotFound)

	_, err = svc.List(ctx, core.ItemFilter{})
	assert.ErrorIs(t, err, core.ErrEmptyUser)
}

func seed(t *testing.T, store *memory.Store, limit int64, items ...core.SpendingItem) {
	t.Helper()
	ctx := context.Background()
	if limit > 0 {
		_, err := store.SaveProfile(ctx, core.UserProfile{UserID: "u1", Name: "U", MonthlySpendingLimit: limit})
		require.NoError(t, err)
	}
	for _, item := range items {
		_, err := store.CreateSpendingItem(ctx, item)
		require.NoError(t, err)
	}
}

func TestOverview(t *testing.T) {
	store := memory.New(nil)
	seed(t, store, 1000,
		newItem("Lunch", 100, ref.Add(-time.Hour)),
		newItem("Dinner", 300, ref.AddDate(0, 0, -2)),
		core.SpendingItem{UserID: "u1", CategoryID: "transport", Title: "Bus", Amount: 50, CreatedAt: ref.AddDate(0, 0, -1)},
		newItem("Old", 999, ref.AddDate(0, -2, 0)),
		core.SpendingItem{UserID: "u2", CategoryID: "food", Title: "Other", Amount: 1, CreatedAt: ref},
	)
	svc := NewOverviewService(store, 10, time.Minute, nil)

	o, err := svc.Overview(context.Background(), "u1", ref)
	require.NoError(t, err)

	assert.Equal(t, int64(100), o.Totals.Today)
	assert.Equal(t, int64(450), o.Totals.ThisMonth)
	assert.Equal(t, int64(1449), o.Totals.ThisYear)
	require.NotNil(t, o.MostExpensiveItem)
	assert.Equal(t, "Dinner", o.MostExpensiveItem.Title)
	require.NotNil(t, o.MostFrequentCategory)
	assert.Equal(t, "Food", o.MostFrequentCategory.CategoryName)
	assert.Len(t, o.Last7Days, 7)
	assert.Equal(t, int64(450), o.Last7Days[6].Accumulated)
	assert.Len(t, o.RecentItems, 3)
	assert.Equal(t, int64(450), o.Budget.Spent)
	assert.Equal(t, int64(550), o.Budget.Remaining)
	assert.Len(t, o.CategoryTotals, len(core.DefaultCategories()))
}

func TestOverviewCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store, 0, newItem("Lunch", 100, ref))
	overview := NewOverviewService(store, 10, time.Hour, nil)
	spending := NewSpendingService(store, nil, nil, overview)

	first, err := overview.Overview(ctx, "u1", ref)
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.Totals.Today)

	// a write that bypasses the service is not seen until invalidation
	seed(t, store, 0, newItem("Snack", 5, ref))
	cached, err := overview.Overview(ctx, "u1", ref)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cached.Totals.Today)

	_, err = spending.Create(ctx, newItem("Coffee", 20, ref))
	require.NoError(t, err)
	fresh, err := overview.Overview(ctx, "u1", ref)
	require.NoError(t, err)
	assert.Equal(t, int64(125), fresh.Totals.Today)

	hits, misses, size := overview.CacheStats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)
	assert.Equal(t, 1, size)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store, 0,
		newItem("Jan", 10, time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)),
		newItem("Mar", 20, time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)),
		newItem("Late", 30, time.Date(2025, 3, 19, 22, 10, 0, 0, time.UTC)),
		newItem("LastYear", 40, time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)),
	)
	svc := NewOverviewService(store, 10, time.Minute, nil)

	year, err := svc.History(ctx, "u1", "year", ref)
	require.NoError(t, err)
	require.Len(t, year.Buckets, 12)
	assert.Equal(t, "Jan", year.Buckets[0].Key)
	assert.Equal(t, int64(50), year.Buckets[2].Amount)
	assert.Equal(t, int64(60), year.Total)
	assert.Equal(t, 3, year.ItemCount)

	month, err := svc.History(ctx, "u1", "month", ref)
	require.NoError(t, err)
	assert.Len(t, month.Buckets, 31)
	assert.Equal(t, int64(50), month.Total)

	// the rolling window ends at the hour of the latest item, not at ref
	last24, err := svc.History(ctx, "u1", "24h", ref)
	require.NoError(t, err)
	require.Len(t, last24.Buckets, 24)
	assert.Equal(t, "22", last24.Buckets[23].Key)
	assert.Equal(t, int64(30), last24.Buckets[23].Amount)
	assert.Equal(t, int64(30), last24.Total)

	_, err = svc.History(ctx, "u1", "decade", ref)
	assert.Error(t, err)
}

// recordingStore counts item fetches and can hold them until released.
type recordingStore struct {
	*memory.Store
	mu      sync.Mutex
	filters []core.ItemFilter
	release chan struct{}
}

func (s *recordingStore) FetchSpendingItems(ctx context.Context, filter core.ItemFilter) ([]core.SpendingItem, error) {
	s.mu.Lock()
	s.filters = append(s.filters, filter)
	s.mu.Unlock()
	if s.release != nil {
		<-s.release
	}
	return s.Store.FetchSpendingItems(ctx, filter)
}

func (s *recordingStore) fetches() []core.ItemFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ItemFilter(nil), s.filters...)
}

func TestHistoryLast24HoursFetchesOnlyTheWindow(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{Store: memory.New(nil)}
	seed(t, store.Store, 0,
		newItem("Old", 40, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		newItem("Before", 7, time.Date(2025, 3, 18, 21, 0, 0, 0, time.UTC)),
		newItem("Early", 5, time.Date(2025, 3, 19, 0, 30, 0, 0, time.UTC)),
		newItem("Late", 30, time.Date(2025, 3, 19, 22, 10, 0, 0, time.UTC)),
	)
	svc := NewOverviewService(store, 10, time.Minute, nil)

	h, err := svc.History(ctx, "u1", "24h", ref)
	require.NoError(t, err)
	assert.Equal(t, int64(35), h.Total)
	assert.Equal(t, 2, h.ItemCount)
	assert.Equal(t, time.Date(2025, 3, 18, 23, 0, 0, 0, time.UTC), h.From.UTC())

	fetches := store.fetches()
	require.Len(t, fetches, 2)
	assert.Equal(t, 1, fetches[0].Limit)
	assert.Equal(t, time.Date(2025, 3, 20, 16, 0, 0, 0, time.UTC), fetches[0].To.UTC())
	assert.Equal(t, time.Date(2025, 3, 18, 23, 0, 0, 0, time.UTC), fetches[1].From.UTC())
	assert.Equal(t, time.Date(2025, 3, 19, 23, 0, 0, 0, time.UTC), fetches[1].To.UTC())
	assert.Zero(t, fetches[1].Limit)
}

func TestHistoryLast24HoursWithoutItems(t *testing.T) {
	svc := NewOverviewService(memory.New(nil), 10, time.Minute, nil)

	h, err := svc.History(context.Background(), "u1", "24h", ref)
	require.NoError(t, err)
	require.Len(t, h.Buckets, 24)
	assert.Equal(t, "15", h.Buckets[23].Key)
	assert.Zero(t, h.Total)
}

func TestBudgetConcurrentCallsShareOneLoad(t *testing.T) {
	store := &recordingStore{Store: memory.New(nil), release: make(chan struct{})}
	seed(t, store.Store, 400, newItem("Lunch", 100, ref))
	svc := NewOverviewService(store, 10, time.Minute, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int64, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := svc.Budget(context.Background(), "u1", ref)
			assert.NoError(t, err)
			results[i] = b.Spent
		}()
	}

	require.Eventually(t, func() bool { return len(store.fetches()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Len(t, store.fetches(), 1)
	for _, spent := range results {
		assert.Equal(t, int64(100), spent)
	}
}

func TestBudget(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store, 0, newItem("Lunch", 100, ref))
	svc := NewOverviewService(store, 10, time.Minute, nil)

	b, err := svc.Budget(ctx, "u1", ref)
	require.NoError(t, err)
	assert.False(t, b.LimitSet)
	assert.Equal(t, int64(100), b.Spent)
	assert.Empty(t, b.Rate.Band)

	_, err = store.SaveProfile(ctx, core.UserProfile{UserID: "u1", MonthlySpendingLimit: 400})
	require.NoError(t, err)
	svc.Invalidate("u1")

	b, err = svc.Budget(ctx, "u1", ref)
	require.NoError(t, err)
	assert.True(t, b.LimitSet)
	assert.Equal(t, int64(300), b.Remaining)
	assert.Equal(t, 25.0, b.PercentUsed)
	assert.Equal(t, 12, b.DaysLeft)
}

func TestDemoOverview(t *testing.T) {
	svc := NewOverviewService(memory.New(nil), 10, time.Minute, nil)
	a := svc.DemoOverview(ref)
	b := svc.DemoOverview(ref)

	assert.Equal(t, a, b)
	assert.True(t, a.Budget.LimitSet)
	assert.NotNil(t, a.MostExpensiveItem)
	assert.Len(t, a.Last7Days, 7)
}

func TestBudgetMonitor(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store, 1000, newItem("Rent", 790, ref))

	var sunk []Alert
	m := NewBudgetMonitor(store, nil, nil, func(a Alert) { sunk = append(sunk, a) })

	alert, err := m.Check(ctx, "u1", ref)
	require.NoError(t, err)
	assert.Nil(t, alert, "79 percent must not alert")

	seed(t, store, 0, newItem("Food", 20, ref))
	alert, err = m.Check(ctx, "u1", ref)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, 80, alert.Threshold)
	assert.Equal(t, "2025-03", alert.Month)

	alert, err = m.Check(ctx, "u1", ref)
	require.NoError(t, err)
	assert.Nil(t, alert, "same threshold alerts once per month")

	seed(t, store, 0, newItem("Flight", 500, ref))
	alerts, err := m.Sweep(ctx, ref)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 100, alerts[0].Threshold)

	next := ref.AddDate(0, 1, 0)
	seed(t, store, 0, newItem("Rent", 1200, next))
	alert, err = m.Check(ctx, "u1", next)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, 100, alert.Threshold, "only the highest crossed threshold is reported")

	assert.Len(t, sunk, 3)

	none, err := m.Check(ctx, "nobody", ref)
	require.NoError(t, err)
	assert.Nil(t, none)
}
