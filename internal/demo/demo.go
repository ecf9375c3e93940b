// Package demo produces synthetic spending data for the public demo overview
// and for seeding a fresh store.
package demo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

const (
	UserID   = "demo"
	Email    = "demo@example.com"
	Password = "demo-password"
)

// Options controls Generate. Zero fields take the defaults below.
type Options struct {
	Seed       uint64
	Now        time.Time
	Days       int
	Count      int
	UserID     string
	Categories []core.SpendingCategory
	MinAmount  int64
	MaxAmount  int64
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Days <= 0 {
		o.Days = 60
	}
	if o.Count <= 0 {
		o.Count = 120
	}
	if o.UserID == "" {
		o.UserID = UserID
	}
	if len(o.Categories) == 0 {
		o.Categories = core.DefaultCategories()
	}
	if o.MinAmount <= 0 {
		o.MinAmount = 15
	}
	if o.MaxAmount < o.MinAmount {
		o.MaxAmount = o.MinAmount + 1500
	}
	return o
}

var titles = map[string][]string{
	"food":          {"Groceries", "Lunch", "Coffee", "Bakery", "Takeaway"},
	"transport":     {"Bus ticket", "Fuel", "Taxi", "Train", "Parking"},
	"entertainment": {"Cinema", "Concert", "Streaming", "Board game"},
	"shopping":      {"Shoes", "T-shirt", "Headphones", "Books"},
	"health":        {"Pharmacy", "Gym", "Dentist"},
	"home":          {"Cleaning", "Lamp", "Plants", "Electricity"},
}

var fallbackTitles = []string{"Misc", "Gift", "Fee", "Donation"}

// Generate returns opts.Count items spread over the opts.Days days ending at
// opts.Now, newest first. The same options always produce the same items.
func Generate(opts Options) []core.SpendingItem {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	window := int64(opts.Days) * int64(24*time.Hour)
	spread := opts.MaxAmount - opts.MinAmount + 1

	items := make([]core.SpendingItem, opts.Count)
	for i := range items {
		cat := opts.Categories[rng.IntN(len(opts.Categories))]
		pool, ok := titles[cat.ID]
		if !ok {
			pool = fallbackTitles
		}
		at := opts.Now.Add(-time.Duration(rng.Int64N(window))).Truncate(time.Minute)

		items[i] = core.SpendingItem{
			ID:           fmt.Sprintf("demo-%03d", i+1),
			UserID:       opts.UserID,
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			Title:        pool[rng.IntN(len(pool))],
			Amount:       opts.MinAmount + rng.Int64N(spread),
			CreatedAt:    at,
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

// Store is what SeedStore writes through.
type Store interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	SaveProfile(ctx context.Context, p core.UserProfile) (core.UserProfile, error)
	ListCategories(ctx context.Context) ([]core.SpendingCategory, error)
	CreateSpendingItem(ctx context.Context, item core.SpendingItem) (core.SpendingItem, error)
}

// SeedStore creates the demo account with a monthly limit and generated
// history. It reports created=false without touching the store when the
// account already exists.
func SeedStore(ctx context.Context, store Store, passwordHash string, opts Options) (user core.User, created bool, err error) {
	user, err = store.CreateUser(ctx, core.User{Email: Email, PasswordHash: passwordHash})
	if errors.Is(err, core.ErrConflict) {
		return core.User{}, false, nil
	}
	if err != nil {
		return core.User{}, false, fmt.Errorf("create demo user: %w", err)
	}

	if _, err := store.SaveProfile(ctx, core.UserProfile{
		UserID:               user.ID,
		Name:                 "Demo",
		MonthlySpendingLimit: 12000,
	}); err != nil {
		return core.User{}, false, fmt.Errorf("create demo profile: %w", err)
	}

	cats, err := store.ListCategories(ctx)
	if err != nil {
		return core.User{}, false, fmt.Errorf("list categories: %w", err)
	}
	opts.UserID = user.ID
	opts.Categories = cats

	for _, item := range Generate(opts) {
		item.ID = ""
		if _, err := store.CreateSpendingItem(ctx, item); err != nil {
			return core.User{}, false, fmt.Errorf("seed item: %w", err)
		}
	}
	return user, true, nil
}
