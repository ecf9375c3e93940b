package http

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

func TestParseAmountField(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{`12`, 12, true},
		{`"12,4"`, 12, true},
		{`"12.5"`, 13, true},
		{`12.5`, 13, true},
		{`"0.4"`, 0, false},
		{`-3`, 0, false},
		{`null`, 0, false},
		{``, 0, false},
		{`"abc"`, 0, false},
	}
	for _, tc := range cases {
		got, err := parseAmountField(json.RawMessage(tc.raw))
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("parseAmountField(%s) = %d, %v; want %d", tc.raw, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("parseAmountField(%s) expected error, got %d", tc.raw, got)
		}
	}
}

func TestParseRef(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2025, time.March, 15, 9, 30, 0, 0, loc)

	got, err := parseRef(url.Values{}, now)
	if err != nil || !got.Equal(now) {
		t.Fatalf("expected now, got %v, %v", got, err)
	}

	got, err = parseRef(url.Values{"date": {"2024-12-31"}}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, time.December, 31, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got, err = parseRef(url.Values{"date": {"2024-12-31 18:00"}}, now)
	if err != nil || got.Hour() != 18 {
		t.Fatalf("expected timestamp form to be accepted, got %v, %v", got, err)
	}

	if _, err := parseRef(url.Values{"date": {"31.12.2024"}}, now); !core.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseItemFilter(t *testing.T) {
	q := url.Values{"from": {"2025-03-01"}, "to": {"2025-03-31"}, "category": {" food "}}
	f, err := parseItemFilter(q, "u1", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.UserID != "u1" || f.CategoryID != "food" {
		t.Fatalf("unexpected filter %+v", f)
	}
	if !f.To.Equal(time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("to must be exclusive next day, got %v", f.To)
	}

	if _, err := parseItemFilter(url.Values{"to": {"March"}}, "u1", time.UTC); !core.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestItemRequestDefaultsCreatedAt(t *testing.T) {
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	req := itemRequest{Title: " Coffee\x00 ", CategoryID: "food", Amount: json.RawMessage(`3`)}
	item, err := req.toItem("u1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Title != "Coffee" || !item.CreatedAt.Equal(now) || item.UserID != "u1" {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x07b\tc\n "); got != "ab\tc" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
}
