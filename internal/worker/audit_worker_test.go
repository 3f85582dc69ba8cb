package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/services"
)

type recordingExporter struct {
	mu    sync.Mutex
	years map[int][]core.MonthHistory
}

func (e *recordingExporter) ExportYear(_ context.Context, year int, rows []core.MonthHistory) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.years == nil {
		e.years = map[int][]core.MonthHistory{}
	}
	e.years[year] = rows
	return nil
}

func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	cats := services.NewCategoryService(store)
	_, err := cats.CreateCategory(ctx, "u1", core.Category{Name: "Salary", Type: core.Income})
	require.NoError(t, err)
	_, err = cats.CreateCategory(ctx, "u1", core.Category{Name: "Food", Type: core.Expense})
	require.NoError(t, err)

	ledgerSvc := services.NewLedgerService(store, nil)
	for _, in := range []core.TransactionInput{
		{Amount: decimal.RequireFromString("1000"), Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Type: core.Income, Category: "Salary"},
		{Amount: decimal.RequireFromString("20.50"), Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Type: core.Expense, Category: "Food"},
		{Amount: decimal.RequireFromString("12"), Date: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), Type: core.Expense, Category: "Food"},
	} {
		_, err := ledgerSvc.CreateTransaction(ctx, "u1", in)
		require.NoError(t, err)
	}
}

func corruptMarch(t *testing.T, store *memory.Store) {
	t.Helper()
	err := store.InTx(context.Background(), func(tx ledger.Tx) error {
		return tx.SetMonthHistory(context.Background(), core.MonthHistory{
			UserID: "u1", Year: 2024, Month: 2,
			Income: decimal.NewFromInt(1), Expense: decimal.Zero,
		})
	})
	require.NoError(t, err)
}

func TestHandleAuditMessage_Repairs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store)
	corruptMarch(t, store)

	w := NewAuditWorker(services.NewReconciler(store, 2), store, nil, Config{Repair: true})
	require.NoError(t, w.HandleAuditMessage(ctx, amqp.NewRollupAuditMessage("u1", 2024)))

	rows, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Income.Equal(decimal.NewFromInt(1000)))
	require.True(t, rows[0].Expense.Equal(decimal.RequireFromString("20.50")))
}

func TestHandleAuditMessage_ReportOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store)
	corruptMarch(t, store)

	w := NewAuditWorker(services.NewReconciler(store, 2), store, nil, Config{})
	require.NoError(t, w.HandleAuditMessage(ctx, amqp.NewRollupAuditMessage("u1", 2024)))

	rows, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, rows[0].Income.Equal(decimal.NewFromInt(1)), "audit without repair must not write")
}

func TestSweep_ExportsEveryYear(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store)
	exp := &recordingExporter{}

	w := NewAuditWorker(services.NewReconciler(store, 2), store, exp, Config{Repair: true})
	drifted, err := w.Sweep(ctx)
	require.NoError(t, err)
	require.Empty(t, drifted)

	require.Len(t, exp.years, 2)
	require.Len(t, exp.years[2023], 1)
	require.Equal(t, 11, exp.years[2023][0].Month)
	require.Len(t, exp.years[2024], 1)
}

func TestAuditWorker_StartStop(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store)
	corruptMarch(t, store)

	w := NewAuditWorker(services.NewReconciler(store, 1), store, nil, Config{Interval: time.Hour, Repair: true})
	require.False(t, w.IsRunning())
	require.NoError(t, w.Start(ctx))
	require.True(t, w.IsRunning())
	require.Error(t, w.Start(ctx))

	// The first sweep runs immediately on start.
	require.Eventually(t, func() bool {
		rows, err := store.MonthHistory(ctx, "u1", 2024)
		return err == nil && len(rows) == 1 && rows[0].Income.Equal(decimal.NewFromInt(1000))
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	require.False(t, w.IsRunning())
	require.NoError(t, w.Stop(stopCtx))
}
