package aggregate

import (
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

// Totals are the headline figures for the periods containing a reference time.
type Totals struct {
	Today     int64 `json:"today"`
	ThisWeek  int64 `json:"thisWeek"`
	ThisMonth int64 `json:"thisMonth"`
	ThisYear  int64 `json:"thisYear"`
}

// Sum adds up every item amount.
func Sum(items []core.SpendingItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Amount
	}
	return total
}

// MostExpensiveItem returns the item with the strictly greatest amount. On a
// tie the first one in input order wins. It reports false for empty input.
func MostExpensiveItem(items []core.SpendingItem) (core.SpendingItem, bool) {
	if len(items) == 0 {
		return core.SpendingItem{}, false
	}
	best := 0
	for i := 1; i < len(items); i++ {
		if items[i].Amount > items[best].Amount {
			best = i
		}
	}
	return items[best], true
}

// MostFrequentCategory groups items by category name and returns the group
// with the most items. Ties go to the group encountered first.
func MostFrequentCategory(items []core.SpendingItem) (core.CategoryFrequency, bool) {
	if len(items) == 0 {
		return core.CategoryFrequency{}, false
	}

	groups := make([]core.CategoryFrequency, 0)
	seen := make(map[string]int)
	for _, item := range items {
		i, ok := seen[item.CategoryName]
		if !ok {
			i = len(groups)
			seen[item.CategoryName] = i
			groups = append(groups, core.CategoryFrequency{CategoryName: item.CategoryName})
		}
		groups[i].ItemCount++
		groups[i].TotalAmount += item.Amount
	}

	best := 0
	for i := 1; i < len(groups); i++ {
		if groups[i].ItemCount > groups[best].ItemCount {
			best = i
		}
	}
	return groups[best], true
}

// CategoryTotals returns one entry per category, in the order given, with the
// sum of matching items. Categories without spending are kept with 0.
func CategoryTotals(items []core.SpendingItem, categories []core.SpendingCategory) []core.CategoryAmount {
	sums := make(map[string]int64, len(categories))
	for _, item := range items {
		sums[item.CategoryName] += item.Amount
	}
	out := make([]core.CategoryAmount, len(categories))
	for i, c := range categories {
		out[i] = core.CategoryAmount{Name: c.Name, Amount: sums[c.Name]}
	}
	return out
}

// PeriodTotals sums items falling in the day, ISO week, month and year of ref.
func PeriodTotals(items []core.SpendingItem, ref time.Time) Totals {
	loc := ref.Location()
	day := StartOfDay(ref)
	week := StartOfWeek(ref)
	month := StartOfMonth(ref)
	nextDay := day.AddDate(0, 0, 1)

	var t Totals
	for _, item := range items {
		if !item.HasValidTime() {
			continue
		}
		at := item.CreatedAt.In(loc)
		if !at.Before(nextDay) {
			continue
		}
		if at.Year() == ref.Year() {
			t.ThisYear += item.Amount
		}
		if !at.Before(month) {
			t.ThisMonth += item.Amount
		}
		if !at.Before(week) {
			t.ThisWeek += item.Amount
		}
		if !at.Before(day) {
			t.Today += item.Amount
		}
	}
	return t
}

// FilterRange keeps items whose valid CreatedAt lies in [from, to).
func FilterRange(items []core.SpendingItem, from, to time.Time) []core.SpendingItem {
	out := make([]core.SpendingItem, 0, len(items))
	for _, item := range items {
		if !item.HasValidTime() {
			continue
		}
		if item.CreatedAt.Before(from) || !item.CreatedAt.Before(to) {
			continue
		}
		out = append(out, item)
	}
	return out
}
