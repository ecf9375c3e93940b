package aggregate

import (
	"math"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

// Band classifies projected consumption of the remaining monthly budget.
type Band string

const (
	BandVeryLow  Band = "Very Low"
	BandLow      Band = "Low"
	BandBalanced Band = "Balanced"
	BandHigh     Band = "High"
	BandVeryHigh Band = "Very High"
)

// RateProjection describes how fast the current month's budget is consumed.
type RateProjection struct {
	AveragePerItem   int64   `json:"averagePerItem"`
	ProjectedSpend   int64   `json:"projectedSpend"`
	ProjectedPercent float64 `json:"projectedPercent"`
	DaysToLimit      int     `json:"daysToLimit"`
	Band             Band    `json:"band,omitempty"`
}

// Budget is the month-to-date state of a user's spending limit.
type Budget struct {
	Limit       int64          `json:"limit"`
	LimitSet    bool           `json:"limitSet"`
	Spent       int64          `json:"spent"`
	Remaining   int64          `json:"remaining"`
	PercentUsed float64        `json:"percentUsed"`
	DaysLeft    int            `json:"daysLeft"`
	Rate        RateProjection `json:"rate"`
}

// Percentage returns portion/total*100 rounded to fractions decimal places.
// It returns 0 when either operand is 0, so a 0 result does not tell "0% of
// a valid total" apart from an undefined ratio. Use PercentageOf for that.
func Percentage(portion, total float64, fractions int) float64 {
	if portion == 0 || total == 0 {
		return 0
	}
	return round(portion/total*100, fractions)
}

// PercentageOf is Percentage with an explicit result for undefined ratios:
// it reports false when total is 0.
func PercentageOf(portion, total float64, fractions int) (float64, bool) {
	if total == 0 {
		return 0, false
	}
	return Percentage(portion, total, fractions), true
}

func round(v float64, fractions int) float64 {
	if fractions < 0 {
		fractions = 0
	}
	p := math.Pow(10, float64(fractions))
	r := math.Round(v*p) / p
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// RemainingBudget is limit minus everything spent. Negative means overspent.
func RemainingBudget(items []core.SpendingItem, limit int64) int64 {
	return limit - Sum(items)
}

// SpendingRate projects the average spend per item over the days left in the
// month and compares it with the remaining budget.
//
// DaysToLimit is 0 whenever the average or the remaining budget is not
// positive; check the sign of remaining before reading it as "already over".
func SpendingRate(totalSpent int64, itemCount int, remaining int64, daysLeft int) RateProjection {
	var p RateProjection
	if itemCount > 0 {
		p.AveragePerItem = totalSpent / int64(itemCount)
	}
	if daysLeft > 0 {
		p.ProjectedSpend = p.AveragePerItem * int64(daysLeft)
	}
	p.ProjectedPercent = Percentage(float64(p.ProjectedSpend), float64(remaining), 0)
	if p.AveragePerItem > 0 && remaining > 0 {
		p.DaysToLimit = int(remaining / p.AveragePerItem)
	}

	if remaining <= 0 && totalSpent > 0 {
		p.Band = BandVeryHigh
	} else {
		p.Band = bandFor(p.ProjectedPercent)
	}
	return p
}

// SpendingRateBand is the band part of SpendingRate.
func SpendingRateBand(totalSpent int64, itemCount int, remaining int64, daysLeft int) Band {
	return SpendingRate(totalSpent, itemCount, remaining, daysLeft).Band
}

func bandFor(percent float64) Band {
	switch {
	case percent < 50:
		return BandVeryLow
	case percent < 75:
		return BandLow
	case percent < 100:
		return BandBalanced
	case percent < 125:
		return BandHigh
	default:
		return BandVeryHigh
	}
}

// BudgetStatus evaluates the items of ref's month against limit. A limit of
// 0 is unset: spending is still reported but no rate band is assigned.
func BudgetStatus(items []core.SpendingItem, limit int64, ref time.Time) Budget {
	from, to := PeriodRange(ResolutionMonth, ref)
	month := FilterRange(items, from, to)

	b := Budget{
		Limit:    limit,
		LimitSet: limit > 0,
		Spent:    Sum(month),
		DaysLeft: DaysLeftInMonth(ref),
	}
	if !b.LimitSet {
		if len(month) > 0 {
			b.Rate.AveragePerItem = b.Spent / int64(len(month))
		}
		return b
	}

	b.Remaining = RemainingBudget(month, limit)
	b.PercentUsed = Percentage(float64(b.Spent), float64(limit), 1)
	b.Rate = SpendingRate(b.Spent, len(month), b.Remaining, b.DaysLeft)
	return b
}
