package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/period"
)

func corrupt(t *testing.T, store ledger.Store, h core.MonthHistory) {
	t.Helper()
	err := store.InTx(context.Background(), func(tx ledger.Tx) error {
		return tx.SetMonthHistory(context.Background(), h)
	})
	require.NoError(t, err)
}

func TestReconciler_AuditAndRepair(t *testing.T) {
	ctx := context.Background()
	store, ledgerSvc, _ := newLedgerFixture(t)
	_, err := ledgerSvc.CreateTransaction(ctx, "u1", input("40", march(3), core.Expense, "Food"))
	require.NoError(t, err)
	_, err = ledgerSvc.CreateTransaction(ctx, "u1", input("100", march(4), core.Income, "Salary"))
	require.NoError(t, err)

	r := NewReconciler(store, 0)
	report, err := r.Audit(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, report.Clean())

	corrupt(t, store, core.MonthHistory{UserID: "u1", Year: 2024, Month: 2, Income: decimal.NewFromInt(100), Expense: decimal.NewFromInt(45)})
	corrupt(t, store, core.MonthHistory{UserID: "u1", Year: 2024, Month: 8, Income: decimal.Zero, Expense: decimal.NewFromInt(3)})

	report, err = r.Audit(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 2)
	require.Equal(t, 2, report.Drifts[0].Month)
	require.True(t, report.Drifts[0].ExpectedExpense.Equal(decimal.NewFromInt(40)))
	require.True(t, report.Drifts[0].ActualExpense.Equal(decimal.NewFromInt(45)))
	require.Equal(t, 8, report.Drifts[1].Month)
	require.False(t, report.Repaired)

	report, err = r.Repair(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, report.Repaired)

	report, err = r.Audit(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, report.Clean())

	rows, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	for _, h := range rows {
		if h.Month == 8 {
			require.True(t, h.Expense.IsZero(), "orphan month is zeroed")
		}
	}
}

func TestReconciler_YearDrift(t *testing.T) {
	ctx := context.Background()
	store, ledgerSvc, _ := newLedgerFixture(t)
	_, err := ledgerSvc.CreateTransaction(ctx, "u1", input("10", march(3), core.Expense, "Food"))
	require.NoError(t, err)

	err = store.InTx(ctx, func(tx ledger.Tx) error {
		return tx.SetYearHistory(ctx, core.YearHistory{UserID: "u1", Year: 2024, Expense: decimal.NewFromInt(11)})
	})
	require.NoError(t, err)

	r := NewReconciler(store, 1)
	report, err := r.Audit(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	require.Equal(t, -1, report.Drifts[0].Month)

	_, err = r.Repair(ctx, "u1", 2024)
	require.NoError(t, err)
	yh, ok, err := store.YearHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, yh.Expense.Equal(decimal.NewFromInt(10)))
}

func TestReconciler_AuditAll(t *testing.T) {
	ctx := context.Background()
	store, ledgerSvc, _ := newLedgerFixture(t)
	cats := NewCategoryService(store)
	_, err := cats.CreateCategory(ctx, "u0", core.Category{Name: "Food", Type: core.Expense})
	require.NoError(t, err)

	for _, c := range []struct {
		user string
		date time.Time
	}{
		{"u1", march(1)},
		{"u1", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"u0", march(1)},
	} {
		_, err := ledgerSvc.CreateTransaction(ctx, c.user, input("5", c.date, core.Expense, "Food"))
		require.NoError(t, err)
	}

	r := NewReconciler(store, 2)
	drifted, err := r.AuditAll(ctx, false)
	require.NoError(t, err)
	require.Empty(t, drifted)

	corrupt(t, store, core.MonthHistory{UserID: "u1", Year: 2024, Month: 2, Expense: decimal.NewFromInt(1)})
	corrupt(t, store, core.MonthHistory{UserID: "u1", Year: 2023, Month: 0, Expense: decimal.NewFromInt(1)})
	corrupt(t, store, core.MonthHistory{UserID: "u0", Year: 2024, Month: 2, Expense: decimal.NewFromInt(1)})

	drifted, err = r.AuditAll(ctx, true)
	require.NoError(t, err)
	require.Len(t, drifted, 3)
	require.Equal(t, "u0", drifted[0].UserID)
	require.Equal(t, 2023, drifted[1].Year)
	require.Equal(t, 2024, drifted[2].Year)
	for _, rep := range drifted {
		require.True(t, rep.Repaired)
	}

	drifted, err = r.AuditAll(ctx, false)
	require.NoError(t, err)
	require.Empty(t, drifted)
}

// racingStore fires onRead from inside the first transaction that reads the
// ledger, and from any read made outside a transaction.
type racingStore struct {
	*memory.Store
	once   sync.Once
	onRead func()
}

func (s *racingStore) fire() { s.once.Do(s.onRead) }

func (s *racingStore) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.InTx(ctx, func(tx ledger.Tx) error {
		return fn(racingTx{Tx: tx, store: s})
	})
}

func (s *racingStore) ListTransactions(ctx context.Context, userID string, rng period.Range) ([]core.Transaction, error) {
	s.fire()
	return s.Store.ListTransactions(ctx, userID, rng)
}

func (s *racingStore) MonthHistory(ctx context.Context, userID string, year int) ([]core.MonthHistory, error) {
	s.fire()
	return s.Store.MonthHistory(ctx, userID, year)
}

type racingTx struct {
	ledger.Tx
	store *racingStore
}

func (t racingTx) MonthHistory(ctx context.Context, userID string, year int) ([]core.MonthHistory, error) {
	t.store.fire()
	return t.Tx.MonthHistory(ctx, userID, year)
}

func TestReconciler_RepairWithConcurrentCommit(t *testing.T) {
	ctx := context.Background()
	store, ledgerSvc, _ := newLedgerFixture(t)
	_, err := ledgerSvc.CreateTransaction(ctx, "u1", input("10", march(3), core.Expense, "Food"))
	require.NoError(t, err)

	done := make(chan error, 1)
	racing := &racingStore{Store: store, onRead: func() {
		go func() {
			_, err := ledgerSvc.CreateTransaction(ctx, "u1", input("5", march(4), core.Expense, "Food"))
			done <- err
		}()
		// Give the writer time to commit if nothing holds it back.
		time.Sleep(50 * time.Millisecond)
	}}

	report, err := NewReconciler(racing, 1).Repair(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, report.Clean(), "a clean store must not be rewritten: %+v", report.Drifts)
	require.False(t, report.Repaired)
	require.NoError(t, <-done)

	rows, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Expense.Equal(decimal.NewFromInt(15)), "got %s", rows[0].Expense)

	report, err = NewReconciler(store, 1).Audit(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, report.Clean())
}

func TestReconciler_RepairRollsBackOnReadError(t *testing.T) {
	ctx := context.Background()
	store, ledgerSvc, _ := newLedgerFixture(t)
	_, err := ledgerSvc.CreateTransaction(ctx, "u1", input("10", march(3), core.Expense, "Food"))
	require.NoError(t, err)
	corrupt(t, store, core.MonthHistory{UserID: "u1", Year: 2024, Month: 2, Expense: decimal.NewFromInt(99)})

	failing := &failingYearStore{Store: store}
	_, err = NewReconciler(failing, 1).Repair(ctx, "u1", 2024)
	require.ErrorIs(t, err, core.ErrStoreUnavailable)

	rows, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, rows[0].Expense.Equal(decimal.NewFromInt(99)), "nothing is written when the recompute fails")
}

type failingYearStore struct {
	*memory.Store
}

func (s *failingYearStore) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.InTx(ctx, func(tx ledger.Tx) error {
		return fn(failingYearTx{tx})
	})
}

type failingYearTx struct {
	ledger.Tx
}

func (failingYearTx) YearHistory(context.Context, string, int) (core.YearHistory, bool, error) {
	return core.YearHistory{}, false, core.Unavailable("query year history", errors.New("disk I/O error"))
}

func TestReconciler_RepairLogsRewrittenRows(t *testing.T) {
	ctx := context.Background()
	store, ledgerSvc, _ := newLedgerFixture(t)
	_, err := ledgerSvc.CreateTransaction(ctx, "u1", input("10", march(3), core.Expense, "Food"))
	require.NoError(t, err)
	corrupt(t, store, core.MonthHistory{UserID: "u1", Year: 2024, Month: 2, Expense: decimal.NewFromInt(12)})

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	_, err = NewReconciler(store, 1).Repair(ctx, "u1", 2024)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, `"msg":"Rollup row rewritten"`)
	require.Contains(t, out, `"user_id":"u1"`)
	require.Contains(t, out, `"year":2024`)
	require.Contains(t, out, `"month":2`)
	require.Contains(t, out, `"expense":"10.00"`)
}
