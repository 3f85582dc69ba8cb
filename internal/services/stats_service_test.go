package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/period"
)

func newStatsFixture(t *testing.T) (*StatsService, *LedgerService) {
	t.Helper()
	store, ledgerSvc, _ := newLedgerFixture(t)
	settings := NewSettingsService(store, "")
	stats := NewStatsService(store, settings, period.NewResolver(0))
	stats.now = func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }
	return stats, ledgerSvc
}

func marchRange(t *testing.T, s *StatsService) period.Range {
	t.Helper()
	rng, err := s.Resolver().Resolve(period.Month, period.Period{Year: 2024, Month: 2})
	require.NoError(t, err)
	return rng
}

func TestCategoryStats_Percent(t *testing.T) {
	ctx := context.Background()
	stats, ledgerSvc := newStatsFixture(t)
	for _, in := range []core.TransactionInput{
		input("10", march(1), core.Expense, "Food"),
		input("20", march(2), core.Expense, "Fun"),
		input("50", march(3), core.Income, "Salary"),
	} {
		_, err := ledgerSvc.CreateTransaction(ctx, "u1", in)
		require.NoError(t, err)
	}

	got, err := stats.CategoryStats(ctx, "u1", marchRange(t, stats))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "Salary", got[0].Category)
	require.Equal(t, "100.00", got[0].Percent.StringFixed(2))
	require.Equal(t, "Fun", got[1].Category)
	require.Equal(t, "66.67", got[1].Percent.StringFixed(2))
	require.Equal(t, "33.33", got[2].Percent.StringFixed(2))
}

func TestCategoryStats_TieBreak(t *testing.T) {
	ctx := context.Background()
	stats, ledgerSvc := newStatsFixture(t)
	for _, in := range []core.TransactionInput{
		input("10", march(1), core.Expense, "Fun"),
		input("10", march(1), core.Expense, "Food"),
		input("10", march(1), core.Income, "Salary"),
	} {
		_, err := ledgerSvc.CreateTransaction(ctx, "u1", in)
		require.NoError(t, err)
	}
	got, err := stats.CategoryStats(ctx, "u1", marchRange(t, stats))
	require.NoError(t, err)
	require.Equal(t, []string{"Food", "Fun", "Salary"},
		[]string{got[0].Category, got[1].Category, got[2].Category}, "equal totals order by type then category")
}

func TestEmptyRangeAndNoData(t *testing.T) {
	ctx := context.Background()
	stats, _ := newStatsFixture(t)
	empty, err := stats.Resolver().NewRange(march(1), march(1))
	require.NoError(t, err)

	cats, err := stats.CategoryStats(ctx, "u1", empty)
	require.NoError(t, err)
	require.NotNil(t, cats)
	require.Empty(t, cats)

	b, err := stats.BalanceStats(ctx, "u1", marchRange(t, stats))
	require.NoError(t, err)
	require.True(t, b.Income.IsZero() && b.Expense.IsZero())

	hist, err := stats.HistoryData(ctx, "u1", period.Year, period.Period{Year: 2024})
	require.NoError(t, err)
	require.Empty(t, hist)

	txns, err := stats.TransactionHistory(ctx, "u1", empty)
	require.NoError(t, err)
	require.Empty(t, txns)
}

func TestHistoryPeriods(t *testing.T) {
	ctx := context.Background()
	stats, ledgerSvc := newStatsFixture(t)

	years, err := stats.HistoryPeriods(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []int{2031}, years, "falls back to the current year")

	_, err = ledgerSvc.CreateTransaction(ctx, "u1", input("1", time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC), core.Expense, "Food"))
	require.NoError(t, err)
	_, err = ledgerSvc.CreateTransaction(ctx, "u1", input("1", march(1), core.Expense, "Food"))
	require.NoError(t, err)

	years, err = stats.HistoryPeriods(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []int{2022, 2024}, years)
}

func TestHistoryData(t *testing.T) {
	ctx := context.Background()
	stats, ledgerSvc := newStatsFixture(t)
	for _, in := range []core.TransactionInput{
		input("10", march(5), core.Expense, "Food"),
		input("15", march(5), core.Income, "Salary"),
		input("1", march(20), core.Expense, "Fun"),
		input("7", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), core.Expense, "Food"),
	} {
		_, err := ledgerSvc.CreateTransaction(ctx, "u1", in)
		require.NoError(t, err)
	}

	year, err := stats.HistoryData(ctx, "u1", period.Year, period.Period{Year: 2024})
	require.NoError(t, err)
	require.Len(t, year, 2)
	require.Equal(t, 2, year[0].Month)
	require.Equal(t, 6, year[1].Month)
	require.True(t, year[0].Income.Equal(decimal.NewFromInt(15)))
	require.True(t, year[0].Expense.Equal(decimal.NewFromInt(11)))

	month, err := stats.HistoryData(ctx, "u1", period.Month, period.Period{Year: 2024, Month: 2})
	require.NoError(t, err)
	require.Len(t, month, 2)
	require.Equal(t, 5, month[0].Day)
	require.True(t, month[0].Income.Equal(decimal.NewFromInt(15)))
	require.True(t, month[0].Expense.Equal(decimal.NewFromInt(10)))
	require.Equal(t, 20, month[1].Day)

	_, err = stats.HistoryData(ctx, "u1", period.Month, period.Period{Year: 2024, Month: 12})
	require.True(t, core.IsValidation(err))
}

func TestTransactionHistory_Formatted(t *testing.T) {
	ctx := context.Background()
	stats, ledgerSvc := newStatsFixture(t)
	_, err := ledgerSvc.CreateTransaction(ctx, "u1", input("1234.5", march(1), core.Income, "Salary"))
	require.NoError(t, err)
	_, err = ledgerSvc.CreateTransaction(ctx, "u1", input("2", march(9), core.Expense, "Food"))
	require.NoError(t, err)

	views, err := stats.TransactionHistory(ctx, "u1", marchRange(t, stats))
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, "Food", views[0].Category, "newest first")
	require.Equal(t, "$1,234.50", views[1].FormattedAmount)
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	stats, ledgerSvc := newStatsFixture(t)
	_, err := ledgerSvc.CreateTransaction(ctx, "u1", input("100", march(1), core.Income, "Salary"))
	require.NoError(t, err)
	_, err = ledgerSvc.CreateTransaction(ctx, "u1", input("30", march(2), core.Expense, "Food"))
	require.NoError(t, err)

	ov, err := stats.Overview(ctx, "u1", marchRange(t, stats))
	require.NoError(t, err)
	require.Equal(t, "USD", ov.Currency)
	require.True(t, ov.Balance.Net().Equal(decimal.NewFromInt(70)))
	require.Len(t, ov.Categories, 2)

	_, err = stats.Overview(ctx, "", marchRange(t, stats))
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
}

type failingStats struct {
	*memory.Store
}

func (failingStats) TypeTotals(context.Context, string, period.Range) (core.Balance, error) {
	return core.Balance{}, core.Unavailable("sum by type", errors.New("disk I/O error"))
}

func TestOverview_FailsWhole(t *testing.T) {
	store := memory.New()
	stats := NewStatsService(failingStats{store}, NewSettingsService(store, ""), period.NewResolver(0))
	rng, err := stats.Resolver().NewRange(march(1), march(20))
	require.NoError(t, err)

	ov, err := stats.Overview(context.Background(), "u1", rng)
	require.ErrorIs(t, err, core.ErrStoreUnavailable)
	require.Empty(t, ov.Categories)
	require.Empty(t, ov.Currency)
}
