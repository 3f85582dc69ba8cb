package main

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting bilancio-worker",
		"audit_interval", cfg.AuditInterval,
		"audit_repair", cfg.AuditRepair)

	res := cli.InitBackend(context.Background(), logger, cfg, cfg.AMQPURL != "")

	var exporter worker.HistoryExporter
	if cfg.GoogleSpreadsheetID != "" {
		exp, err := gsheet.NewHistoryExporter(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = exp
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	reconciler := services.NewReconciler(res.Store, cfg.AuditConcurrency)
	auditWorker := worker.NewAuditWorker(reconciler, res.Store, exporter, worker.Config{
		Interval: cfg.AuditInterval,
		Repair:   cfg.AuditRepair,
	})

	ctx, stop, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := auditWorker.Start(ctx); err != nil {
		logger.Error("Failed to start audit worker", "error", err)
		os.Exit(1)
	}

	var consumeFailed atomic.Bool
	if res.AMQP != nil {
		go func() {
			err := res.AMQP.ConsumeRollupAudit(ctx, auditWorker.HandleAuditMessage)
			if ctx.Err() == nil {
				// Broker gone; exit so the supervisor restarts the worker.
				consumeFailed.Store(true)
				logger.Error("Message consumption stopped", "error", err)
				stop()
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP_URL configured")
	}

	cli.WaitForShutdown(ctx, done)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := auditWorker.Stop(stopCtx); err != nil {
		logger.Warn("Audit worker did not stop cleanly", "error", err)
	}
	if err := res.Close(); err != nil {
		logger.Error("Backend close error", "error", err)
	}
	if consumeFailed.Load() {
		logger.Error("Worker exiting after consumer failure")
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
