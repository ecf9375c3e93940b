package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Imaginaryverse/spending-habits/internal/amqp"
	"github.com/Imaginaryverse/spending-habits/internal/cli"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
	"github.com/Imaginaryverse/spending-habits/internal/middleware/metrics"
	"github.com/Imaginaryverse/spending-habits/internal/services"
	"github.com/Imaginaryverse/spending-habits/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	loc := cfg.Location()

	logger.Info("Starting spending-worker")

	if err := worker.ValidateSpec(cfg.BudgetSweepSchedule); err != nil {
		logger.Error("Invalid BUDGET_SWEEP_SCHEDULE", applog.FieldError, err)
		os.Exit(1)
	}

	store := cli.InitBackend(context.Background(), logger, cfg)
	if !store.Type.IsPersistent() {
		logger.Warn("Worker running on a non-persistent backend; it will not see the API's data",
			applog.FieldBackend, cfg.DataBackend)
	}

	m := metrics.New()
	monitor := services.NewBudgetMonitor(store.Store, cfg.BudgetAlertPercents, logger,
		func(a services.Alert) { m.AlertRaised(a.Threshold) },
		func(a services.Alert) {
			logger.Warn("Budget threshold reached",
				applog.FieldUserID, a.UserID,
				"month", a.Month,
				"threshold", a.Threshold,
				applog.FieldPercentUsed, a.PercentUsed,
				"spent", a.Spent,
				applog.FieldLimit, a.Limit,
			)
		},
	)
	budgetWorker := worker.NewBudgetWorker(monitor, loc, logger)

	scheduler := worker.NewScheduler(loc, logger)
	if err := scheduler.Add(cfg.BudgetSweepSchedule, "budget-sweep", budgetWorker.Sweep); err != nil {
		logger.Error("Failed to schedule budget sweep", applog.FieldError, err)
		os.Exit(1)
	}

	amqpClient := cli.InitAMQP(logger, cfg, false)

	var metricsSrv *http.Server
	if cfg.WorkerMetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		metricsSrv = &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Scheduler stop error", applog.FieldError, err)
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}
	})

	// catch up on anything missed while the worker was down
	if err := budgetWorker.Sweep(ctx); err != nil {
		logger.Error("Startup budget sweep failed", applog.FieldError, err)
	}

	// the scheduler outlives the errgroup, whose context is cancelled by Wait
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", applog.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeSpendingEvents(gctx, func(ctx context.Context, evt *amqp.SpendingEvent) error {
				err := budgetWorker.HandleSpendingEvent(ctx, evt)
				outcome := "ok"
				if err != nil {
					outcome = "error"
				}
				m.EventHandled(string(evt.Type), outcome)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping AMQP consumption - budget checks run on schedule only")
	}

	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info("Serving worker metrics", "port", cfg.WorkerMetricsPort)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	exitCode := 0
	if err := g.Wait(); err != nil {
		logger.Error("Worker failed", applog.FieldError, err)
		exitCode = 1
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = scheduler.Stop(stopCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(stopCtx)
		}
		cancel()
	} else {
		cli.WaitForShutdown(ctx, done)
	}

	if amqpClient != nil {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
	}
	if err := store.Cleanup(); err != nil {
		logger.Warn("Backend cleanup error", applog.FieldError, err)
	}
	logger.Info("Worker stopped")
	os.Exit(exitCode)
}
