// Package worker runs the background rollup audit: it reacts to audit
// messages published after ledger writes, sweeps every user-year on a timer
// and optionally exports the month history to a spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

// HistoryExporter receives every user's month history for one year.
type HistoryExporter interface {
	ExportYear(ctx context.Context, year int, rows []core.MonthHistory) error
}

// HistorySource is what the exporter pass reads.
type HistorySource interface {
	ledger.AuditReader
	MonthHistory(ctx context.Context, userID string, year int) ([]core.MonthHistory, error)
}

type Config struct {
	// Interval between full sweeps (default: 1h)
	Interval time.Duration
	// Repair overwrites drifted rollups instead of only reporting them.
	Repair bool
}

func DefaultConfig() Config {
	return Config{Interval: time.Hour}
}

// AuditWorker audits rollups on demand and on a timer.
type AuditWorker struct {
	reconciler *services.Reconciler
	source     HistorySource
	exporter   HistoryExporter // nil disables the export pass
	config     Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewAuditWorker(reconciler *services.Reconciler, source HistorySource, exporter HistoryExporter, config Config) *AuditWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &AuditWorker{
		reconciler: reconciler,
		source:     source,
		exporter:   exporter,
		config:     config,
	}
}

// HandleAuditMessage audits the user-year named by msg. A returned error
// requeues the message.
func (w *AuditWorker) HandleAuditMessage(ctx context.Context, msg *amqp.RollupAuditMessage) error {
	run := w.reconciler.Audit
	if w.config.Repair {
		run = w.reconciler.Repair
	}
	report, err := run(ctx, msg.UserID, msg.Year)
	if err != nil {
		return fmt.Errorf("audit message: %w", err)
	}
	if !report.Clean() {
		slog.WarnContext(ctx, "Rollup drift detected",
			applog.FieldUserID, msg.UserID,
			applog.FieldYear, msg.Year,
			"drifts", len(report.Drifts),
			"repaired", report.Repaired)
	}
	return nil
}

// Sweep audits every user-year, then exports history when an exporter is set.
func (w *AuditWorker) Sweep(ctx context.Context) ([]services.AuditReport, error) {
	drifted, err := w.reconciler.AuditAll(ctx, w.config.Repair)
	if err != nil {
		return nil, err
	}
	if w.exporter != nil {
		if err := w.Export(ctx); err != nil {
			return drifted, err
		}
	}
	return drifted, nil
}

// Export writes each year's month history for all users.
func (w *AuditWorker) Export(ctx context.Context) error {
	if w.exporter == nil {
		return nil
	}
	pairs, err := w.source.UserYears(ctx)
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}

	byYear := map[int][]core.MonthHistory{}
	for _, uy := range pairs {
		rows, err := w.source.MonthHistory(ctx, uy.UserID, uy.Year)
		if err != nil {
			return fmt.Errorf("export history: %w", err)
		}
		byYear[uy.Year] = append(byYear[uy.Year], rows...)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		if err := w.exporter.ExportYear(ctx, y, byYear[y]); err != nil {
			return fmt.Errorf("export history %d: %w", y, err)
		}
	}
	slog.InfoContext(ctx, "History exported", "years", len(years))
	return nil
}

// Start begins the sweep loop. Returns an error if already running.
func (w *AuditWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("audit worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Audit worker started",
		"interval", w.config.Interval,
		"repair", w.config.Repair,
		"export", w.exporter != nil)
	return nil
}

// Stop signals the loop and waits for the sweep in progress to finish.
func (w *AuditWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Audit worker stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Audit worker stop timed out")
		return ctx.Err()
	}
}

func (w *AuditWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *AuditWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.sweepAndLog(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepAndLog(ctx)
		}
	}
}

func (w *AuditWorker) sweepAndLog(ctx context.Context) {
	if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Periodic audit failed", applog.FieldError, err)
	}
}
