package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/period"
)

var hundred = decimal.NewFromInt(100)

type (
	// StatsReader is the slice of the store the aggregation engine reads.
	StatsReader interface {
		ledger.StatsReader
		ledger.HistoryReader
	}

	// TransactionView is a transaction with its amount rendered in the user's currency.
	TransactionView struct {
		core.Transaction
		FormattedAmount string
	}

	// Overview is the dashboard snapshot for one range.
	Overview struct {
		Currency   string
		Balance    core.Balance
		Categories []core.CategoryStat
	}
)

// StatsService answers the dashboard's aggregation queries. Every method is a
// read; none of them touches the rollups.
type StatsService struct {
	store    StatsReader
	settings *SettingsService
	resolver period.Resolver
	now      func() time.Time
}

func NewStatsService(store StatsReader, settings *SettingsService, resolver period.Resolver) *StatsService {
	return &StatsService{
		store:    store,
		settings: settings,
		resolver: resolver,
		now:      time.Now,
	}
}

// Resolver exposes the range rules used by the service.
func (s *StatsService) Resolver() period.Resolver { return s.resolver }

// CategoryStats groups the range by (type, category, icon), largest total first.
// Ties are ordered by type, category, then icon.
func (s *StatsService) CategoryStats(ctx context.Context, userID string, rng period.Range) ([]core.CategoryStat, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	if rng.Empty() {
		return []core.CategoryStat{}, nil
	}
	stats, err := s.store.CategoryTotals(ctx, userID, rng)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	withPercent(stats)
	return stats, nil
}

// withPercent fills each stat's share of its type total.
func withPercent(stats []core.CategoryStat) {
	totals := map[core.TransactionType]decimal.Decimal{}
	for _, st := range stats {
		totals[st.Type] = totals[st.Type].Add(st.TotalAmount)
	}
	for i := range stats {
		total := totals[stats[i].Type]
		if total.IsZero() {
			stats[i].Percent = decimal.Zero
			continue
		}
		stats[i].Percent = stats[i].TotalAmount.Mul(hundred).Div(total).Round(2)
	}
}

// BalanceStats sums income and expense over the range.
func (s *StatsService) BalanceStats(ctx context.Context, userID string, rng period.Range) (core.Balance, error) {
	if userID == "" {
		return core.Balance{}, core.ErrNotAuthenticated
	}
	if rng.Empty() {
		return core.Balance{}, nil
	}
	b, err := s.store.TypeTotals(ctx, userID, rng)
	if err != nil {
		return core.Balance{}, fmt.Errorf("balance stats: %w", err)
	}
	return b, nil
}

// HistoryData returns the chart series for a timeframe. A year series comes from
// the month rollups and is sparse; a month series is summed per day from the
// transactions of that month.
func (s *StatsService) HistoryData(ctx context.Context, userID string, tf period.Timeframe, p period.Period) ([]core.HistoryBucket, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	rng, err := s.resolver.Resolve(tf, p)
	if err != nil {
		return nil, err
	}

	switch tf {
	case period.Year:
		rows, err := s.store.MonthHistory(ctx, userID, p.Year)
		if err != nil {
			return nil, fmt.Errorf("history data: %w", err)
		}
		out := make([]core.HistoryBucket, 0, len(rows))
		for _, h := range rows {
			out = append(out, core.HistoryBucket{Year: h.Year, Month: h.Month, Income: h.Income, Expense: h.Expense})
		}
		return out, nil
	default:
		out, err := s.store.DailyTotals(ctx, userID, rng)
		if err != nil {
			return nil, fmt.Errorf("history data: %w", err)
		}
		return out, nil
	}
}

// HistoryPeriods lists the years that have month rollups, ascending. A user
// with no history gets the current year.
func (s *StatsService) HistoryPeriods(ctx context.Context, userID string) ([]int, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	years, err := s.store.HistoryYears(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("history periods: %w", err)
	}
	if len(years) == 0 {
		return []int{s.now().Year()}, nil
	}
	return years, nil
}

// TransactionHistory lists the range newest first with formatted amounts.
func (s *StatsService) TransactionHistory(ctx context.Context, userID string, rng period.Range) ([]TransactionView, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	if rng.Empty() {
		return []TransactionView{}, nil
	}
	f, err := s.settings.Formatter(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("transaction history: %w", err)
	}
	txns, err := s.store.ListTransactions(ctx, userID, rng)
	if err != nil {
		return nil, fmt.Errorf("transaction history: %w", err)
	}
	out := make([]TransactionView, 0, len(txns))
	for _, t := range txns {
		out = append(out, TransactionView{Transaction: t, FormattedAmount: f.Format(t.Amount)})
	}
	return out, nil
}

// Overview fetches settings, balance and category stats concurrently. Any
// failure fails the whole snapshot.
func (s *StatsService) Overview(ctx context.Context, userID string, rng period.Range) (Overview, error) {
	if userID == "" {
		return Overview{}, core.ErrNotAuthenticated
	}

	var ov Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		us, err := s.settings.GetSettings(gctx, userID)
		if err != nil {
			return err
		}
		ov.Currency = us.Currency
		return nil
	})
	g.Go(func() error {
		b, err := s.BalanceStats(gctx, userID, rng)
		if err != nil {
			return err
		}
		ov.Balance = b
		return nil
	})
	g.Go(func() error {
		cats, err := s.CategoryStats(gctx, userID, rng)
		if err != nil {
			return err
		}
		ov.Categories = cats
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, fmt.Errorf("overview: %w", err)
	}
	return ov, nil
}
