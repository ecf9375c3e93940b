package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/aggregate"
	"github.com/Imaginaryverse/spending-habits/internal/core"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
)

var DefaultAlertThresholds = []int{80, 100}

// BudgetStore is what the monitor reads.
type BudgetStore interface {
	FetchSpendingItems(ctx context.Context, filter core.ItemFilter) ([]core.SpendingItem, error)
	GetProfile(ctx context.Context, userID string) (core.UserProfile, error)
	ListProfilesWithLimit(ctx context.Context) ([]core.UserProfile, error)
}

// Alert reports that a user's month-to-date spending reached Threshold
// percent of their limit.
type Alert struct {
	UserID      string    `json:"user_id"`
	Month       string    `json:"month"`
	Threshold   int       `json:"threshold"`
	PercentUsed float64   `json:"percent_used"`
	Spent       int64     `json:"spent"`
	Limit       int64     `json:"limit"`
	At          time.Time `json:"at"`
}

// AlertSink receives alerts as they are raised.
type AlertSink func(Alert)

// BudgetMonitor raises at most one alert per user, month and threshold.
type BudgetMonitor struct {
	store      BudgetStore
	thresholds []int
	logger     *applog.Logger
	sinks      []AlertSink

	mu    sync.Mutex
	month string
	sent  map[string]struct{}
}

func NewBudgetMonitor(store BudgetStore, thresholds []int, logger *applog.Logger, sinks ...AlertSink) *BudgetMonitor {
	if len(thresholds) == 0 {
		thresholds = DefaultAlertThresholds
	}
	sorted := append([]int(nil), thresholds...)
	sort.Ints(sorted)
	if logger == nil {
		logger = applog.Discard()
	}
	return &BudgetMonitor{
		store:      store,
		thresholds: sorted,
		logger:     logger.WithComponent(applog.ComponentBudget),
		sinks:      sinks,
		sent:       make(map[string]struct{}),
	}
}

// Check evaluates userID's month containing ref. When several thresholds are
// crossed at once only the highest is reported; the lower ones are marked
// as sent.
func (m *BudgetMonitor) Check(ctx context.Context, userID string, ref time.Time) (*Alert, error) {
	profile, err := m.store.GetProfile(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return m.check(ctx, profile, ref)
}

func (m *BudgetMonitor) check(ctx context.Context, profile core.UserProfile, ref time.Time) (*Alert, error) {
	if !profile.HasLimit() {
		return nil, nil
	}

	from, to := aggregate.PeriodRange(aggregate.ResolutionMonth, ref)
	items, err := m.store.FetchSpendingItems(ctx, core.ItemFilter{UserID: profile.UserID, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}

	status := aggregate.BudgetStatus(items, profile.MonthlySpendingLimit, ref)
	month := ref.Format("2006-01")

	m.mu.Lock()
	if m.month != month {
		m.month = month
		m.sent = make(map[string]struct{})
	}
	var reached int
	for _, th := range m.thresholds {
		if status.Spent*100 < int64(th)*status.Limit {
			break
		}
		k := fmt.Sprintf("%s|%s|%d", profile.UserID, month, th)
		if _, done := m.sent[k]; !done {
			m.sent[k] = struct{}{}
			reached = th
		}
	}
	m.mu.Unlock()

	if reached == 0 {
		return nil, nil
	}

	alert := &Alert{
		UserID:      profile.UserID,
		Month:       month,
		Threshold:   reached,
		PercentUsed: status.PercentUsed,
		Spent:       status.Spent,
		Limit:       status.Limit,
		At:          ref,
	}
	m.logger.WarnContext(ctx, "Monthly spending limit threshold reached",
		applog.FieldUserID, alert.UserID,
		"threshold", alert.Threshold,
		applog.FieldPercentUsed, alert.PercentUsed,
		applog.FieldLimit, alert.Limit)
	for _, sink := range m.sinks {
		sink(*alert)
	}
	return alert, nil
}

// Sweep checks every user with a limit and returns the alerts raised.
// A failing user does not stop the sweep.
func (m *BudgetMonitor) Sweep(ctx context.Context, ref time.Time) ([]Alert, error) {
	profiles, err := m.store.ListProfilesWithLimit(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	var (
		alerts []Alert
		errs   []error
	)
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return alerts, err
		}
		alert, err := m.check(ctx, p, ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", p.UserID, err))
			continue
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	m.logger.InfoContext(ctx, "Budget sweep completed",
		applog.FieldOperation, applog.OpSweep,
		"profiles", len(profiles),
		"alerts", len(alerts),
		"errors", len(errs))
	return alerts, errors.Join(errs...)
}
