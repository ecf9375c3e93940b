package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validItem() SpendingItem {
	return SpendingItem{
		UserID:     "u1",
		CategoryID: "food",
		Title:      "Lunch",
		Amount:     120,
		CreatedAt:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSpendingItemValidate(t *testing.T) {
	if err := validItem().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*SpendingItem)
		want   error
	}{
		{"zero amount", func(s *SpendingItem) { s.Amount = 0 }, ErrInvalidAmount},
		{"negative amount", func(s *SpendingItem) { s.Amount = -5 }, ErrInvalidAmount},
		{"empty title", func(s *SpendingItem) { s.Title = "   " }, ErrEmptyTitle},
		{"long title", func(s *SpendingItem) { s.Title = strings.Repeat("a", 21) }, ErrTitleTooLong},
		{"long comment", func(s *SpendingItem) { s.Comment = strings.Repeat("c", 201) }, ErrCommentTooLong},
		{"no category", func(s *SpendingItem) { s.CategoryID = "" }, ErrEmptyCategory},
		{"zero date", func(s *SpendingItem) { s.CreatedAt = time.Time{} }, ErrInvalidDate},
		{"no user", func(s *SpendingItem) { s.UserID = "" }, ErrEmptyUser},
	}
	for _, tc := range cases {
		item := validItem()
		tc.mutate(&item)
		err := item.Validate()
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if !IsValidationError(err) {
			t.Fatalf("%s: expected validation error classification", tc.name)
		}
	}
}

func TestTitleLengthCountsRunes(t *testing.T) {
	item := validItem()
	item.Title = strings.Repeat("é", 20)
	if err := item.Validate(); err != nil {
		t.Fatalf("20 runes should be accepted, got %v", err)
	}
}

func TestUserProfileValidate(t *testing.T) {
	if err := (UserProfile{UserID: "u1"}).Validate(); err != nil {
		t.Fatalf("unset limit should be valid, got %v", err)
	}
	if err := (UserProfile{UserID: "u1", MonthlySpendingLimit: -1}).Validate(); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	if (UserProfile{UserID: "u1"}).HasLimit() {
		t.Fatalf("zero limit must report unset")
	}
}

func TestItemFilterMatches(t *testing.T) {
	item := validItem()
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		f    ItemFilter
		want bool
	}{
		{ItemFilter{}, true},
		{ItemFilter{UserID: "u1"}, true},
		{ItemFilter{UserID: "u2"}, false},
		{ItemFilter{CategoryID: "transport"}, false},
		{ItemFilter{From: jan, To: feb}, true},
		{ItemFilter{From: feb}, false},
		{ItemFilter{To: item.CreatedAt}, false}, // To is exclusive
	}
	for i, tc := range cases {
		if got := tc.f.Matches(item); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestDefaultCategoriesStable(t *testing.T) {
	a, b := DefaultCategories(), DefaultCategories()
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("unexpected category list lengths %d/%d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("category order not stable at %d", i)
		}
	}
}
