package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/cli"
	apphttp "bilancio/internal/http"
	"bilancio/internal/identity"
	applog "bilancio/internal/log"
	"bilancio/internal/period"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	logger.Info("Starting bilancio server", "port", cfg.Port, "backend", cfg.DataBackend)

	res := cli.InitBackend(context.Background(), logger, cfg, false)

	verifier, err := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logger.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	// Settings are read on every formatted response; keep them in a small cache.
	settingsStore := cache.NewSettingsStore(res.Store, 1000, 5*time.Minute)
	caches := cache.NewManager()
	caches.Register(settingsStore.Cache())
	caches.StartCleanup(10 * time.Minute)

	var publisher services.AuditPublisher
	if res.AMQP != nil {
		publisher = res.AMQP
	}

	settings := services.NewSettingsService(settingsStore, cfg.DefaultCurrency)
	svc := apphttp.Services{
		Ledger:     services.NewLedgerService(res.Store, publisher),
		Stats:      services.NewStatsService(res.Store, settings, period.NewResolver(cfg.MaxRangeSpan())),
		Categories: services.NewCategoryService(res.Store),
		Settings:   settings,
		Store:      res.Store,
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, verifier, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", "error", err)
		}
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		stop()
		cli.WaitForShutdown(ctx, done)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
