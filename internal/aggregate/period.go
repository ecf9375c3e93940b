// Package aggregate turns raw spending items into chart-ready buckets and
// summary figures.
//
// Every function here is pure: no I/O, no shared state, and no panics on
// malformed input. Items with a zero CreatedAt are skipped by anything that
// needs to place an item in time.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

// Resolution is the granularity used when bucketing items.
type Resolution string

const (
	ResolutionYear        Resolution = "year"
	ResolutionMonth       Resolution = "month"
	ResolutionDay         Resolution = "day"
	ResolutionLast24Hours Resolution = "24h"
	ResolutionLast7Days   Resolution = "7d"
)

// ParseResolution maps a query value to a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case ResolutionYear, ResolutionMonth, ResolutionDay, ResolutionLast24Hours, ResolutionLast7Days:
		return r, nil
	}
	return "", fmt.Errorf("unknown resolution %q", s)
}

// Bucket is one time slice of a period. Accumulated is the running total
// from the first bucket up to and including this one. Categories is only
// filled for the rolling 7-day window.
type Bucket struct {
	Key         string                `json:"dateKey"`
	Amount      int64                 `json:"amount"`
	Accumulated int64                 `json:"accumulatedAmount"`
	Categories  []core.CategoryAmount `json:"categorySummary,omitempty"`
}

const dayKeyLayout = "2006-01-02"

// BucketByPeriod sums item amounts into the full, chronologically ordered
// set of buckets for the period around ref. The bucket count depends only
// on the resolution and ref, never on the data.
//
// Calendar resolutions (year, month, day) cover the year, month or day that
// contains ref. The 24-hour window ends at the hour of the most recent item
// and the 7-day window ends at ref's date; both are emitted oldest first.
// All matching happens in ref's location.
func BucketByPeriod(items []core.SpendingItem, res Resolution, ref time.Time) []Bucket {
	loc := ref.Location()

	var (
		buckets []Bucket
		index   func(t time.Time) int
	)

	switch res {
	case ResolutionYear:
		buckets = make([]Bucket, 12)
		for i := range buckets {
			buckets[i].Key = time.Month(i + 1).String()[:3]
		}
		index = func(t time.Time) int {
			if t.Year() != ref.Year() {
				return -1
			}
			return int(t.Month()) - 1
		}

	case ResolutionMonth:
		buckets = make([]Bucket, DaysInMonth(ref.Year(), ref.Month()))
		for i := range buckets {
			buckets[i].Key = fmt.Sprintf("%02d", i+1)
		}
		index = func(t time.Time) int {
			if t.Year() != ref.Year() || t.Month() != ref.Month() {
				return -1
			}
			return t.Day() - 1
		}

	case ResolutionDay:
		buckets = make([]Bucket, 24)
		for i := range buckets {
			buckets[i].Key = fmt.Sprintf("%02d", i)
		}
		y, m, d := ref.Date()
		index = func(t time.Time) int {
			ty, tm, td := t.Date()
			if ty != y || tm != m || td != d {
				return -1
			}
			return t.Hour()
		}

	case ResolutionLast24Hours:
		anchor := startOfHour(LatestItemTime(items, ref).In(loc))
		buckets = make([]Bucket, 24)
		for i := range buckets {
			buckets[i].Key = anchor.Add(time.Duration(i-23) * time.Hour).Format("15")
		}
		index = func(t time.Time) int {
			diff := anchor.Sub(startOfHour(t))
			if diff < 0 || diff >= 24*time.Hour {
				return -1
			}
			return 23 - int(diff/time.Hour)
		}

	case ResolutionLast7Days:
		return bucketLast7Days(items, ref)

	default:
		return nil
	}

	for _, item := range items {
		if !item.HasValidTime() {
			continue
		}
		if i := index(item.CreatedAt.In(loc)); i >= 0 && i < len(buckets) {
			buckets[i].Amount += item.Amount
		}
	}
	accumulate(buckets)
	return buckets
}

func bucketLast7Days(items []core.SpendingItem, ref time.Time) []Bucket {
	loc := ref.Location()
	today := StartOfDay(ref)

	buckets := make([]Bucket, 7)
	byKey := make(map[string]int, 7)
	perDay := make([][]core.SpendingItem, 7)
	for i := range buckets {
		key := today.AddDate(0, 0, i-6).Format(dayKeyLayout)
		buckets[i].Key = key
		byKey[key] = i
	}

	for _, item := range items {
		if !item.HasValidTime() {
			continue
		}
		i, ok := byKey[item.CreatedAt.In(loc).Format(dayKeyLayout)]
		if !ok {
			continue
		}
		buckets[i].Amount += item.Amount
		perDay[i] = append(perDay[i], item)
	}

	for i := range buckets {
		buckets[i].Categories = CategoryBreakdown(perDay[i])
	}
	accumulate(buckets)
	return buckets
}

func accumulate(buckets []Bucket) {
	var running int64
	for i := range buckets {
		running += buckets[i].Amount
		buckets[i].Accumulated = running
	}
}

// CategoryBreakdown returns the nonzero per-category totals of items, largest
// first. Equal amounts are ordered by name.
func CategoryBreakdown(items []core.SpendingItem) []core.CategoryAmount {
	if len(items) == 0 {
		return nil
	}
	sums := make(map[string]int64)
	for _, item := range items {
		sums[item.CategoryName] += item.Amount
	}
	out := make([]core.CategoryAmount, 0, len(sums))
	for name, amount := range sums {
		if amount == 0 {
			continue
		}
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// LatestItemTime returns the most recent valid CreatedAt in items, or
// fallback when there is none.
func LatestItemTime(items []core.SpendingItem, fallback time.Time) time.Time {
	var latest time.Time
	for _, item := range items {
		if item.HasValidTime() && item.CreatedAt.After(latest) {
			latest = item.CreatedAt
		}
	}
	if latest.IsZero() {
		return fallback
	}
	return latest
}

// PeriodRange returns the half-open [from, to) interval a resolution covers
// around ref. It is used to fetch just the items a bucketing call needs. For
// the 24-hour window it returns the 24 hours ending with ref's hour.
func PeriodRange(res Resolution, ref time.Time) (from, to time.Time) {
	switch res {
	case ResolutionYear:
		from = time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, ref.Location())
		return from, from.AddDate(1, 0, 0)
	case ResolutionMonth:
		from = StartOfMonth(ref)
		return from, from.AddDate(0, 1, 0)
	case ResolutionDay:
		from = StartOfDay(ref)
		return from, from.AddDate(0, 0, 1)
	case ResolutionLast24Hours:
		to = startOfHour(ref).Add(time.Hour)
		return to.Add(-24 * time.Hour), to
	case ResolutionLast7Days:
		to = StartOfDay(ref).AddDate(0, 0, 1)
		return to.AddDate(0, 0, -7), to
	}
	return time.Time{}, time.Time{}
}

// DaysInMonth uses real calendar rules, so February has 29 days in leap years.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysLeftInMonth counts the remaining days of ref's month, today included.
func DaysLeftInMonth(ref time.Time) int {
	return DaysInMonth(ref.Year(), ref.Month()) - ref.Day() + 1
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return StartOfDay(t).AddDate(0, 0, -offset)
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// startOfHour truncates on absolute time, so the repeated wall-clock hour of a
// DST fall-back stays two distinct hours. Assumes whole-hour zone offsets.
func startOfHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}
