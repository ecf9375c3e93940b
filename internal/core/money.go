// Package core provides the spending domain types and amount handling.
//
// Amounts are whole currency units held in int64. Fractions entered by the
// user are rounded half-up at the parsing boundary and never stored.
package core

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ParseAmount converts a user-entered amount to whole currency units.
//
// It accepts both dot (12.5) and comma (12,5) decimal separators and rounds
// half-up on the first fractional digit. The result is always positive.
// Returns ErrInvalidAmount for invalid formats, negative values, or zero.
//
// Examples:
//
//	ParseAmount("12")    -> 12, nil
//	ParseAmount("12,4")  -> 12, nil
//	ParseAmount("12.5")  -> 13, nil
//	ParseAmount("0.4")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return 0, ErrInvalidAmount
		}
	}
	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if len(fracPart) > 0 && fracPart[0] >= '5' {
		if units == 1<<63-1 {
			return 0, ErrInvalidAmount
		}
		units++
	}
	if units <= 0 {
		return 0, ErrInvalidAmount
	}
	return units, nil
}

// FormatAmount renders an amount with space-separated thousands, e.g. "12 500".
func FormatAmount(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(' ')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses a stored or user-supplied timestamp. Layouts without
// a zone are read in loc. It reports false, with a zero time, when nothing
// matches.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
