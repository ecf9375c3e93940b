package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Imaginaryverse/spending-habits/internal/aggregate"
	"github.com/Imaginaryverse/spending-habits/internal/cache"
	"github.com/Imaginaryverse/spending-habits/internal/core"
	"github.com/Imaginaryverse/spending-habits/internal/demo"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
)

const recentItemsLimit = 5

// OverviewStore is the read side the overview needs.
type OverviewStore interface {
	FetchSpendingItems(ctx context.Context, filter core.ItemFilter) ([]core.SpendingItem, error)
	ListCategories(ctx context.Context) ([]core.SpendingCategory, error)
	GetProfile(ctx context.Context, userID string) (core.UserProfile, error)
}

// Overview is the dashboard for one user at a reference time. Item-level
// figures cover the month containing the reference time.
type Overview struct {
	Totals               aggregate.Totals        `json:"totals"`
	MostExpensiveItem    *core.SpendingItem      `json:"mostExpensiveItem,omitempty"`
	MostFrequentCategory *core.CategoryFrequency `json:"mostFrequentCategory,omitempty"`
	CategoryTotals       []core.CategoryAmount   `json:"categoryTotals"`
	Last7Days            []aggregate.Bucket      `json:"last7Days"`
	RecentItems          []core.SpendingItem     `json:"recentItems"`
	Budget               aggregate.Budget        `json:"budget"`
}

// History is one resolution's chart data.
type History struct {
	Resolution     aggregate.Resolution  `json:"resolution"`
	From           time.Time             `json:"from"`
	To             time.Time             `json:"to"`
	Buckets        []aggregate.Bucket    `json:"buckets"`
	Total          int64                 `json:"total"`
	ItemCount      int                   `json:"itemCount"`
	CategoryTotals []core.CategoryAmount `json:"categoryTotals"`
}

type snapshot struct {
	items      []core.SpendingItem
	categories []core.SpendingCategory
	limit      int64
}

// OverviewService runs the aggregation engine over a user's items and
// memoises the results until the user's items change or the TTL runs out.
type OverviewService struct {
	store  OverviewStore
	logger *applog.Logger

	overviews *cache.LRUCache[Overview]
	histories *cache.LRUCache[History]
	budgets   *cache.LRUCache[aggregate.Budget]
	group     singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

func NewOverviewService(store OverviewStore, cacheSize int, cacheTTL time.Duration, logger *applog.Logger) *OverviewService {
	if logger == nil {
		logger = applog.Discard()
	}
	return &OverviewService{
		store:       store,
		logger:      logger.WithComponent(applog.ComponentOverview),
		overviews:   cache.NewLRUCache[Overview](cacheSize, cacheTTL),
		histories:   cache.NewLRUCache[History](cacheSize, cacheTTL),
		budgets:     cache.NewLRUCache[aggregate.Budget](cacheSize, cacheTTL),
		generations: make(map[string]uint64),
	}
}

// RegisterCaches hands the service's caches to m for periodic expiry.
func (s *OverviewService) RegisterCaches(m *cache.Manager) {
	m.Register(s.overviews)
	m.Register(s.histories)
	m.Register(s.budgets)
}

// CacheStats sums hits and misses across the service's caches.
func (s *OverviewService) CacheStats() (hits, misses uint64, size int) {
	for _, c := range []interface {
		Stats() (uint64, uint64)
		Size() int
	}{s.overviews, s.histories, s.budgets} {
		h, m := c.Stats()
		hits += h
		misses += m
		size += c.Size()
	}
	return hits, misses, size
}

// Invalidate forgets every cached result for userID.
func (s *OverviewService) Invalidate(userID string) {
	s.mu.Lock()
	s.generations[userID]++
	s.mu.Unlock()

	prefix := userID + "|"
	s.overviews.DeletePrefix(prefix)
	s.histories.DeletePrefix(prefix)
	s.budgets.DeletePrefix(prefix)
}

func (s *OverviewService) key(userID, kind, suffix string) string {
	s.mu.Lock()
	gen := s.generations[userID]
	s.mu.Unlock()
	return fmt.Sprintf("%s|%d|%s|%s", userID, gen, kind, suffix)
}

func (s *OverviewService) Overview(ctx context.Context, userID string, ref time.Time) (Overview, error) {
	key := s.key(userID, "overview", ref.Format("2006-01-02"))
	if o, ok := s.overviews.Get(key); ok {
		return o, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		week := aggregate.StartOfWeek(ref)
		from := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, ref.Location())
		if week.Before(from) {
			from = week
		}
		if last7, _ := aggregate.PeriodRange(aggregate.ResolutionLast7Days, ref); last7.Before(from) {
			from = last7
		}
		_, to := aggregate.PeriodRange(aggregate.ResolutionDay, ref)

		snap, err := s.load(ctx, userID, core.ItemFilter{UserID: userID, From: from, To: to})
		if err != nil {
			return Overview{}, err
		}
		o := buildOverview(snap, ref)
		s.overviews.Set(key, o)
		return o, nil
	})
	if err != nil {
		return Overview{}, err
	}
	return v.(Overview), nil
}

// History buckets the user's items for res around ref. The rolling 24-hour
// window ends at the hour of the user's latest item up to ref.
func (s *OverviewService) History(ctx context.Context, userID string, res aggregate.Resolution, ref time.Time) (History, error) {
	key := s.key(userID, "history", string(res)+"@"+ref.Format("2006-01-02T15"))
	if h, ok := s.histories.Get(key); ok {
		return h, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		from, to := aggregate.PeriodRange(res, ref)
		if from.IsZero() {
			return History{}, fmt.Errorf("unknown resolution %q", res)
		}
		if res == aggregate.ResolutionLast24Hours {
			latest, err := s.latestItemTime(ctx, userID, to, ref)
			if err != nil {
				return History{}, err
			}
			from, to = aggregate.PeriodRange(res, latest)
		}

		snap, err := s.load(ctx, userID, core.ItemFilter{UserID: userID, From: from, To: to})
		if err != nil {
			return History{}, err
		}
		h := buildHistory(snap, res, ref)
		s.histories.Set(key, h)
		return h, nil
	})
	if err != nil {
		return History{}, err
	}
	return v.(History), nil
}

func (s *OverviewService) Budget(ctx context.Context, userID string, ref time.Time) (aggregate.Budget, error) {
	key := s.key(userID, "budget", ref.Format("2006-01-02"))
	if b, ok := s.budgets.Get(key); ok {
		return b, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// a flight that finished between the lookup above and Do already filled the cache
		if b, ok := s.budgets.Get(key); ok {
			return b, nil
		}
		from, to := aggregate.PeriodRange(aggregate.ResolutionMonth, ref)
		snap, err := s.load(ctx, userID, core.ItemFilter{UserID: userID, From: from, To: to})
		if err != nil {
			return aggregate.Budget{}, err
		}
		b := aggregate.BudgetStatus(snap.items, snap.limit, ref)
		s.budgets.Set(key, b)
		return b, nil
	})
	if err != nil {
		return aggregate.Budget{}, err
	}
	return v.(aggregate.Budget), nil
}

// latestItemTime returns the time of the user's newest item before `before`,
// or fallback when there is none.
func (s *OverviewService) latestItemTime(ctx context.Context, userID string, before, fallback time.Time) (time.Time, error) {
	items, err := s.store.FetchSpendingItems(ctx, core.ItemFilter{UserID: userID, To: before, Limit: 1})
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch latest item: %w", err)
	}
	if len(items) == 0 || !items[0].HasValidTime() {
		return fallback, nil
	}
	return items[0].CreatedAt.In(fallback.Location()), nil
}

// DemoOverview computes an overview over generated data. It never touches the store.
func (s *OverviewService) DemoOverview(ref time.Time) Overview {
	cats := core.DefaultCategories()
	items := demo.Generate(demo.Options{Seed: uint64(ref.YearDay()), Now: ref, Categories: cats})
	return buildOverview(snapshot{items: items, categories: cats, limit: 12000}, ref)
}

// load reads items, categories and the profile concurrently.
func (s *OverviewService) load(ctx context.Context, userID string, filter core.ItemFilter) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		items, err := s.store.FetchSpendingItems(gctx, filter)
		if err != nil {
			return fmt.Errorf("fetch items: %w", err)
		}
		snap.items = items
		return nil
	})
	g.Go(func() error {
		cats, err := s.store.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		snap.categories = cats
		return nil
	})
	g.Go(func() error {
		profile, err := s.store.GetProfile(gctx, userID)
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}
		snap.limit = profile.MonthlySpendingLimit
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to load spending data",
			applog.FieldUserID, userID,
			applog.FieldError, err)
		return snapshot{}, err
	}
	return snap, nil
}

func buildOverview(snap snapshot, ref time.Time) Overview {
	from, to := aggregate.PeriodRange(aggregate.ResolutionMonth, ref)
	month := aggregate.FilterRange(snap.items, from, to)

	o := Overview{
		Totals:         aggregate.PeriodTotals(snap.items, ref),
		CategoryTotals: aggregate.CategoryTotals(month, snap.categories),
		Last7Days:      aggregate.BucketByPeriod(snap.items, aggregate.ResolutionLast7Days, ref),
		Budget:         aggregate.BudgetStatus(month, snap.limit, ref),
		RecentItems:    recent(month, recentItemsLimit),
	}
	if item, ok := aggregate.MostExpensiveItem(month); ok {
		o.MostExpensiveItem = &item
	}
	if freq, ok := aggregate.MostFrequentCategory(month); ok {
		o.MostFrequentCategory = &freq
	}
	return o
}

func buildHistory(snap snapshot, res aggregate.Resolution, ref time.Time) History {
	anchor := ref
	if res == aggregate.ResolutionLast24Hours {
		anchor = aggregate.LatestItemTime(snap.items, ref).In(ref.Location())
	}
	from, to := aggregate.PeriodRange(res, anchor)
	inRange := aggregate.FilterRange(snap.items, from, to)

	return History{
		Resolution:     res,
		From:           from,
		To:             to,
		Buckets:        aggregate.BucketByPeriod(snap.items, res, ref),
		Total:          aggregate.Sum(inRange),
		ItemCount:      len(inRange),
		CategoryTotals: aggregate.CategoryTotals(inRange, snap.categories),
	}
}

// recent returns the newest n items. Store reads are already newest first.
func recent(items []core.SpendingItem, n int) []core.SpendingItem {
	if len(items) > n {
		items = items[:n]
	}
	out := make([]core.SpendingItem, len(items))
	copy(out, items)
	return out
}
