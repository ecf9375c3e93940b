// Package worker runs the background side of the service: it consumes
// spending events and sweeps monthly budgets on a schedule.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/amqp"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
	"github.com/Imaginaryverse/spending-habits/internal/services"
)

// Monitor is the budget check the worker drives.
type Monitor interface {
	Check(ctx context.Context, userID string, ref time.Time) (*services.Alert, error)
	Sweep(ctx context.Context, ref time.Time) ([]services.Alert, error)
}

// BudgetWorker re-evaluates budgets when spending changes.
type BudgetWorker struct {
	monitor Monitor
	loc     *time.Location
	now     func() time.Time
	logger  *applog.Logger
}

func NewBudgetWorker(monitor Monitor, loc *time.Location, logger *applog.Logger) *BudgetWorker {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &BudgetWorker{
		monitor: monitor,
		loc:     loc,
		now:     time.Now,
		logger:  logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleSpendingEvent checks the budget of the event's user for the current
// month. Events about other months are still acknowledged: they cannot move
// this month's total.
func (w *BudgetWorker) HandleSpendingEvent(ctx context.Context, evt *amqp.SpendingEvent) error {
	ref := w.now().In(w.loc)

	w.logger.DebugContext(ctx, "Processing spending event",
		applog.FieldEventType, string(evt.Type),
		applog.FieldUserID, evt.UserID,
		applog.FieldItemID, evt.ItemID)

	if !evt.OccurredAt.IsZero() {
		at := evt.OccurredAt.In(w.loc)
		if at.Year() != ref.Year() || at.Month() != ref.Month() {
			return nil
		}
	}

	if _, err := w.monitor.Check(ctx, evt.UserID, ref); err != nil {
		return fmt.Errorf("check budget for %s: %w", evt.UserID, err)
	}
	return nil
}

// Sweep checks every budget once. It is run at startup, to cover events
// missed while the worker was down, and then on the cron schedule.
func (w *BudgetWorker) Sweep(ctx context.Context) error {
	start := time.Now()
	alerts, err := w.monitor.Sweep(ctx, w.now().In(w.loc))
	w.logger.InfoContext(ctx, "Budget sweep finished",
		"alerts", len(alerts),
		"duration", time.Since(start).Round(time.Millisecond).String())
	return err
}
