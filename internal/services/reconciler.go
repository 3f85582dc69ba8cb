package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
	"bilancio/internal/period"
)

// DefaultAuditConcurrency bounds AuditAll when no limit is configured.
const DefaultAuditConcurrency = 4

type (
	// Drift compares a rollup row with the sums recomputed from transactions.
	Drift struct {
		Month           int // -1 for the year row
		ExpectedIncome  decimal.Decimal
		ExpectedExpense decimal.Decimal
		ActualIncome    decimal.Decimal
		ActualExpense   decimal.Decimal
	}

	// AuditReport lists every rollup row of one user-year that disagrees with
	// its transactions.
	AuditReport struct {
		UserID   string
		Year     int
		Drifts   []Drift
		Repaired bool
	}

	sums struct {
		income  decimal.Decimal
		expense decimal.Decimal
	}
)

// Clean reports whether the rollups matched.
func (r AuditReport) Clean() bool { return len(r.Drifts) == 0 }

// Reconciler recomputes rollups from scratch and compares or repairs them.
type Reconciler struct {
	store       ledger.Store
	concurrency int
}

func NewReconciler(store ledger.Store, concurrency int) *Reconciler {
	if concurrency <= 0 {
		concurrency = DefaultAuditConcurrency
	}
	return &Reconciler{store: store, concurrency: concurrency}
}

// expected recomputes month and year sums for userID in year.
func expected(ctx context.Context, src ledger.RollupSource, userID string, year int) (map[int]sums, sums, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	txns, err := src.ListTransactions(ctx, userID, period.Range{From: from, To: from.AddDate(1, 0, 0)})
	if err != nil {
		return nil, sums{}, fmt.Errorf("list transactions: %w", err)
	}
	months := map[int]sums{}
	var total sums
	for _, t := range txns {
		m := months[core.MonthIndex(t.Date)]
		if t.Type == core.Income {
			m.income = m.income.Add(t.Amount)
			total.income = total.income.Add(t.Amount)
		} else {
			m.expense = m.expense.Add(t.Amount)
			total.expense = total.expense.Add(t.Amount)
		}
		months[core.MonthIndex(t.Date)] = m
	}
	return months, total, nil
}

// compare diffs the stored rollups of one user-year against recomputed sums.
// Every read goes through src, so a Tx yields a consistent report.
func compare(ctx context.Context, src ledger.RollupSource, userID string, year int) (AuditReport, error) {
	report := AuditReport{UserID: userID, Year: year}

	expMonths, expYear, err := expected(ctx, src, userID, year)
	if err != nil {
		return report, err
	}
	rows, err := src.MonthHistory(ctx, userID, year)
	if err != nil {
		return report, err
	}

	actual := map[int]sums{}
	for _, h := range rows {
		actual[h.Month] = sums{income: h.Income, expense: h.Expense}
	}
	for m := 0; m < 12; m++ {
		exp, a := expMonths[m], actual[m]
		if !exp.income.Equal(a.income) || !exp.expense.Equal(a.expense) {
			report.Drifts = append(report.Drifts, Drift{
				Month:           m,
				ExpectedIncome:  exp.income,
				ExpectedExpense: exp.expense,
				ActualIncome:    a.income,
				ActualExpense:   a.expense,
			})
		}
	}

	yh, _, err := src.YearHistory(ctx, userID, year)
	if err != nil {
		return report, err
	}
	if !expYear.income.Equal(yh.Income) || !expYear.expense.Equal(yh.Expense) {
		report.Drifts = append(report.Drifts, Drift{
			Month:           -1,
			ExpectedIncome:  expYear.income,
			ExpectedExpense: expYear.expense,
			ActualIncome:    yh.Income,
			ActualExpense:   yh.Expense,
		})
	}
	return report, nil
}

// Audit compares the stored rollups of one user-year with recomputed sums. It
// reads inside a store transaction and writes nothing.
func (r *Reconciler) Audit(ctx context.Context, userID string, year int) (AuditReport, error) {
	var report AuditReport
	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		report, err = compare(ctx, tx, userID, year)
		return err
	})
	if err != nil {
		return AuditReport{UserID: userID, Year: year}, fmt.Errorf("audit %s/%d: %w", userID, year, err)
	}
	return report, nil
}

// Repair recomputes, compares and overwrites every drifted rollup row in a
// single store transaction. Concurrent mutations wait for it to commit.
func (r *Reconciler) Repair(ctx context.Context, userID string, year int) (AuditReport, error) {
	var report AuditReport
	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		report, err = compare(ctx, tx, userID, year)
		if err != nil {
			return err
		}
		for _, d := range report.Drifts {
			if d.Month < 0 {
				if err := tx.SetYearHistory(ctx, core.YearHistory{
					UserID: userID, Year: year, Income: d.ExpectedIncome, Expense: d.ExpectedExpense,
				}); err != nil {
					return err
				}
				continue
			}
			if err := tx.SetMonthHistory(ctx, core.MonthHistory{
				UserID: userID, Year: year, Month: d.Month, Income: d.ExpectedIncome, Expense: d.ExpectedExpense,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return AuditReport{UserID: userID, Year: year}, fmt.Errorf("repair %s/%d: %w", userID, year, err)
	}
	if report.Clean() {
		return report, nil
	}
	report.Repaired = true
	for _, d := range report.Drifts {
		slog.DebugContext(ctx, "Rollup row rewritten",
			applog.FieldUserID, userID,
			applog.FieldYear, year,
			applog.FieldMonth, d.Month,
			"income", d.ExpectedIncome.StringFixed(2),
			"expense", d.ExpectedExpense.StringFixed(2))
	}
	slog.WarnContext(ctx, "Rollups repaired", applog.FieldUserID, userID, applog.FieldYear, year, "drifts", len(report.Drifts))
	return report, nil
}

// AuditAll audits every user-year known to the store and returns the reports
// that found drift, ordered by user and year.
func (r *Reconciler) AuditAll(ctx context.Context, repair bool) ([]AuditReport, error) {
	pairs, err := r.store.UserYears(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit all: %w", err)
	}

	var (
		mu      sync.Mutex
		drifted []AuditReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, uy := range pairs {
		g.Go(func() error {
			run := r.Audit
			if repair {
				run = r.Repair
			}
			report, err := run(gctx, uy.UserID, uy.Year)
			if err != nil {
				return err
			}
			if !report.Clean() {
				mu.Lock()
				drifted = append(drifted, report)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("audit all: %w", err)
	}

	sort.Slice(drifted, func(i, j int) bool {
		if drifted[i].UserID != drifted[j].UserID {
			return drifted[i].UserID < drifted[j].UserID
		}
		return drifted[i].Year < drifted[j].Year
	})
	slog.InfoContext(ctx, "Rollup audit finished", "user_years", len(pairs), "drifted", len(drifted), "repair", repair)
	return drifted, nil
}
