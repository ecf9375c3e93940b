package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength   = 20
	MaxCommentLength = 200
)

type (
	// SpendingItem is a single spending event. CreatedAt is the event time
	// chosen by the user, not an audit timestamp.
	SpendingItem struct {
		ID           string    `json:"id"`
		UserID       string    `json:"user_id"`
		CategoryID   string    `json:"category_id"`
		CategoryName string    `json:"category_name"`
		Title        string    `json:"title"`
		Comment      string    `json:"comment,omitempty"`
		Amount       int64     `json:"amount"`
		CreatedAt    time.Time `json:"created_at"`
	}

	SpendingCategory struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	// UserProfile holds per-user settings. A MonthlySpendingLimit of 0 means unset.
	UserProfile struct {
		ID                   string `json:"id"`
		UserID               string `json:"user_id"`
		Name                 string `json:"name"`
		MonthlySpendingLimit int64  `json:"monthly_spending_limit"`
	}

	User struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"created_at"`
	}

	// ItemFilter narrows a spending item query. Zero values are unbounded and
	// To is exclusive.
	ItemFilter struct {
		UserID     string
		CategoryID string
		From       time.Time
		To         time.Time
		// Limit keeps only the newest items; zero returns all of them.
		Limit      int
	}
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyTitle     = errors.New("empty title")
	ErrTitleTooLong   = errors.New("title too long (max 20 characters)")
	ErrCommentTooLong = errors.New("comment too long (max 200 characters)")
	ErrEmptyCategory  = errors.New("empty category")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidLimit   = errors.New("invalid monthly spending limit")
	ErrEmptyUser      = errors.New("empty user")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
)

// IsValidationError reports whether err is one of the validation sentinels.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrEmptyTitle, ErrTitleTooLong, ErrCommentTooLong,
		ErrEmptyCategory, ErrInvalidDate, ErrInvalidLimit, ErrEmptyUser,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s SpendingItem) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrEmptyUser
	}
	if s.Amount <= 0 {
		return ErrInvalidAmount
	}
	title := strings.TrimSpace(s.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if utf8.RuneCountInString(s.Comment) > MaxCommentLength {
		return ErrCommentTooLong
	}
	if strings.TrimSpace(s.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if s.CreatedAt.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// HasValidTime reports whether the item's event time can be placed in a bucket.
func (s SpendingItem) HasValidTime() bool {
	return !s.CreatedAt.IsZero()
}

func (p UserProfile) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrEmptyUser
	}
	if p.MonthlySpendingLimit < 0 {
		return ErrInvalidLimit
	}
	return nil
}

// HasLimit reports whether the user configured a monthly limit.
func (p UserProfile) HasLimit() bool {
	return p.MonthlySpendingLimit > 0
}

// Matches reports whether item satisfies the filter.
func (f ItemFilter) Matches(item SpendingItem) bool {
	if f.UserID != "" && item.UserID != f.UserID {
		return false
	}
	if f.CategoryID != "" && item.CategoryID != f.CategoryID {
		return false
	}
	if !f.From.IsZero() && item.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !item.CreatedAt.Before(f.To) {
		return false
	}
	return true
}
