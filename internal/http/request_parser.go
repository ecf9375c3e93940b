package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("invalid request body")

// decodeJSON reads a single JSON object into dst, rejecting unknown fields
// and bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadBody)
	}
	return nil
}

// itemRequest is the body of item create and update calls. Amount may be a
// JSON number or a decimal string; CreatedAt defaults to now.
type itemRequest struct {
	Title      string          `json:"title"`
	Comment    string          `json:"comment"`
	CategoryID string          `json:"category_id"`
	Amount     json.RawMessage `json:"amount"`
	CreatedAt  string          `json:"created_at"`
}

func (req itemRequest) toItem(userID string, now time.Time) (core.SpendingItem, error) {
	amount, err := parseAmountField(req.Amount)
	if err != nil {
		return core.SpendingItem{}, err
	}

	createdAt := now
	if s := strings.TrimSpace(req.CreatedAt); s != "" {
		t, ok := core.ParseTimestamp(s, now.Location())
		if !ok {
			return core.SpendingItem{}, core.ErrInvalidDate
		}
		createdAt = t
	}

	return core.SpendingItem{
		UserID:     userID,
		CategoryID: sanitizeInput(req.CategoryID),
		Title:      sanitizeInput(req.Title),
		Comment:    sanitizeInput(req.Comment),
		Amount:     amount,
		CreatedAt:  createdAt,
	}, nil
}

func parseAmountField(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, core.ErrInvalidAmount
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, core.ErrInvalidAmount
		}
	}
	return core.ParseAmount(s)
}

type profileRequest struct {
	Name                 string `json:"name"`
	MonthlySpendingLimit int64  `json:"monthly_spending_limit"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// parseRef returns the reference time for an aggregation request. A date
// parameter selects that day in loc at the current wall clock time, so
// "today" style figures stay meaningful for past days.
func parseRef(query url.Values, now time.Time) (time.Time, error) {
	v := strings.TrimSpace(query.Get("date"))
	if v == "" {
		return now, nil
	}
	d, err := time.ParseInLocation("2006-01-02", v, now.Location())
	if err != nil {
		if t, ok := core.ParseTimestamp(v, now.Location()); ok {
			return t.In(now.Location()), nil
		}
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", core.ErrInvalidDate)
	}
	h, m, s := now.Clock()
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, now.Location()), nil
}

// parseItemFilter reads from, to (inclusive dates) and category.
func parseItemFilter(query url.Values, userID string, loc *time.Location) (core.ItemFilter, error) {
	f := core.ItemFilter{
		UserID:     userID,
		CategoryID: strings.TrimSpace(query.Get("category")),
	}
	if v := strings.TrimSpace(query.Get("from")); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return f, fmt.Errorf("%w: from must be YYYY-MM-DD", core.ErrInvalidDate)
		}
		f.From = t
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return f, fmt.Errorf("%w: to must be YYYY-MM-DD", core.ErrInvalidDate)
		}
		f.To = t.AddDate(0, 0, 1)
	}
	return f, nil
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}
