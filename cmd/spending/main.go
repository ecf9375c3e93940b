package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Imaginaryverse/spending-habits/internal/auth"
	"github.com/Imaginaryverse/spending-habits/internal/cache"
	"github.com/Imaginaryverse/spending-habits/internal/cli"
	"github.com/Imaginaryverse/spending-habits/internal/demo"
	apphttp "github.com/Imaginaryverse/spending-habits/internal/http"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
	"github.com/Imaginaryverse/spending-habits/internal/middleware/metrics"
	"github.com/Imaginaryverse/spending-habits/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)
	loc := cfg.Location()

	ctx := context.Background()
	store := cli.InitBackend(ctx, logger, cfg)

	if cfg.DemoMode {
		seedDemo(ctx, logger, store.Store, loc)
	}

	readyChecks := map[string]apphttp.ReadyCheck{"store": store.Store.Ping}

	// spending events are optional for the API: writes succeed without a broker
	var publisher services.EventPublisher
	amqpClient := cli.InitAMQP(logger, cfg, false)
	if amqpClient != nil {
		publisher = amqpClient
		readyChecks["amqp"] = func(context.Context) error { return amqpClient.Ping() }
	}

	m := metrics.New()
	cacheManager := cache.NewManager(logger)
	overview := services.NewOverviewService(store.Store, cfg.CacheSize, cfg.CacheTTL, logger)
	overview.RegisterCaches(cacheManager)
	m.RegisterCache("overview", overview.CacheStats)
	cacheManager.StartCleanup(cfg.CacheTTL)

	spending := services.NewSpendingService(store.Store, publisher, logger, overview)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Spending:           spending,
		Overview:           overview,
		Accounts:           auth.NewPasswordAuthenticator(store.Store),
		Tokens:             auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		Profiles:           store.Store,
		ReadyChecks:        readyChecks,
		Metrics:            m,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		DemoMode:           cfg.DemoMode,
		Location:           loc,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if err := store.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting spending server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.DataBackend,
		"demo_mode", cfg.DemoMode,
		"timezone", loc.String(),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// seedDemo creates the demo account once. Failures are logged and the
// server starts anyway.
func seedDemo(ctx context.Context, logger *applog.Logger, store demo.Store, loc *time.Location) {
	logger = logger.WithComponent(applog.ComponentDemo)

	hash, err := auth.HashPassword(demo.Password, bcrypt.DefaultCost)
	if err != nil {
		logger.Error("Failed to hash demo password", applog.FieldError, err)
		return
	}
	user, created, err := demo.SeedStore(ctx, store, hash, demo.Options{Seed: 1, Now: time.Now().In(loc)})
	if err != nil {
		logger.Error("Failed to seed demo data", applog.FieldError, err)
		return
	}
	if !created {
		logger.Info("Demo account already present", "email", demo.Email)
		return
	}
	logger.Info("Demo account seeded", applog.FieldUserID, user.ID, "email", demo.Email)
}
