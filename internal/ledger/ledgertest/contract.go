// Package ledgertest holds the behaviour every ledger.Store must share. Store
// packages run it from their own tests.
package ledgertest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/period"
	"bilancio/internal/services"
)

// Factory returns an empty store; the test owns closing it.
type Factory func(t *testing.T) ledger.Store

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store ledger.Store)
	}{
		{"MarchScenario", testMarchScenario},
		{"RollupsMatchTransactions", testRollupsMatchTransactions},
		{"DeleteAndReinsert", testDeleteAndReinsert},
		{"BalanceEqualsCategorySums", testBalanceEqualsCategorySums},
		{"EmptyRange", testEmptyRange},
		{"Categories", testCategories},
		{"Settings", testSettings},
		{"FailedTxRollsBack", testFailedTxRollsBack},
		{"TxReadsOwnWrites", testTxReadsOwnWrites},
		{"ConcurrentWritersKeepRollups", testConcurrentWriters},
		{"TransactionsAreScopedToUser", testUserScoping},
		{"UserYears", testUserYears},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			t.Cleanup(func() { _ = store.Close() })
			tt.fn(t, store)
		})
	}
}

var resolver = period.NewResolver(0)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustCategory(t *testing.T, store ledger.Store, userID, name, icon string, typ core.TransactionType) {
	t.Helper()
	_, err := services.NewCategoryService(store).CreateCategory(context.Background(), userID,
		core.Category{Name: name, Icon: icon, Type: typ})
	require.NoError(t, err)
}

func mustCreate(t *testing.T, svc *services.LedgerService, userID, amount string, date time.Time, typ core.TransactionType, category string) core.Transaction {
	t.Helper()
	txn, err := svc.CreateTransaction(context.Background(), userID, core.TransactionInput{
		Amount: dec(amount), Date: date, Type: typ, Category: category,
	})
	require.NoError(t, err)
	return txn
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.True(t, dec(want).Equal(got), append([]any{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func testMarchScenario(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	const u = "u1"
	mustCategory(t, store, u, "Salary", "💼", core.Income)
	mustCategory(t, store, u, "Food", "🍔", core.Expense)
	mustCategory(t, store, u, "Rent", "🏠", core.Expense)

	svc := services.NewLedgerService(store, nil)
	mustCreate(t, svc, u, "3000", day(2024, 3, 1), core.Income, "Salary")
	mustCreate(t, svc, u, "1200", day(2024, 3, 2), core.Expense, "Rent")
	mustCreate(t, svc, u, "45.50", day(2024, 3, 10), core.Expense, "Food")
	mustCreate(t, svc, u, "54.50", day(2024, 3, 20), core.Expense, "Food")

	rng, err := resolver.Resolve(period.Month, period.Period{Year: 2024, Month: 2})
	require.NoError(t, err)

	b, err := store.TypeTotals(ctx, u, rng)
	require.NoError(t, err)
	requireDecimal(t, "3000", b.Income)
	requireDecimal(t, "1300", b.Expense)

	stats, err := store.CategoryTotals(ctx, u, rng)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	require.Equal(t, "Salary", stats[0].Category)
	require.Equal(t, "Rent", stats[1].Category)
	require.Equal(t, "Food", stats[2].Category)
	require.Equal(t, "🍔", stats[2].CategoryIcon)
	requireDecimal(t, "100", stats[2].TotalAmount)

	months, err := store.MonthHistory(ctx, u, 2024)
	require.NoError(t, err)
	require.Len(t, months, 1)
	require.Equal(t, 2, months[0].Month)
	requireDecimal(t, "3000", months[0].Income)
	requireDecimal(t, "1300", months[0].Expense)

	yh, ok, err := store.YearHistory(ctx, u, 2024)
	require.NoError(t, err)
	require.True(t, ok)
	requireDecimal(t, "3000", yh.Income)
	requireDecimal(t, "1300", yh.Expense)

	days, err := store.DailyTotals(ctx, u, rng)
	require.NoError(t, err)
	require.Len(t, days, 4)
	require.Equal(t, []int{1, 2, 10, 20}, []int{days[0].Day, days[1].Day, days[2].Day, days[3].Day})

	years, err := store.HistoryYears(ctx, u)
	require.NoError(t, err)
	require.Equal(t, []int{2024}, years)
}

// testRollupsMatchTransactions applies a random sequence of creates, updates
// and deletes and checks every rollup against sums recomputed from scratch.
func testRollupsMatchTransactions(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	users := []string{"a", "b"}
	for _, u := range users {
		mustCategory(t, store, u, "Work", "", core.Income)
		mustCategory(t, store, u, "Misc", "", core.Expense)
	}
	svc := services.NewLedgerService(store, nil)
	rnd := rand.New(rand.NewSource(42))

	randomInput := func() core.TransactionInput {
		typ, cat := core.Expense, "Misc"
		if rnd.Intn(2) == 0 {
			typ, cat = core.Income, "Work"
		}
		return core.TransactionInput{
			Amount:   decimal.New(int64(rnd.Intn(100000)+1), -2),
			Date:     day(2023+rnd.Intn(2), time.Month(rnd.Intn(12)+1), rnd.Intn(28)+1),
			Type:     typ,
			Category: cat,
		}
	}

	live := map[string][]string{}
	for i := 0; i < 150; i++ {
		u := users[rnd.Intn(len(users))]
		ids := live[u]
		switch op := rnd.Intn(10); {
		case op < 5 || len(ids) == 0:
			txn, err := svc.CreateTransaction(ctx, u, randomInput())
			require.NoError(t, err)
			live[u] = append(ids, txn.ID)
		case op < 8:
			_, err := svc.UpdateTransaction(ctx, u, ids[rnd.Intn(len(ids))], randomInput())
			require.NoError(t, err)
		default:
			k := rnd.Intn(len(ids))
			require.NoError(t, svc.DeleteTransaction(ctx, u, ids[k]))
			live[u] = append(ids[:k], ids[k+1:]...)
		}
	}

	rec := services.NewReconciler(store, 2)
	for _, u := range users {
		for _, y := range []int{2023, 2024} {
			report, err := rec.Audit(ctx, u, y)
			require.NoError(t, err)
			require.True(t, report.Clean(), "user %s year %d drifted: %+v", u, y, report.Drifts)

			months, err := store.MonthHistory(ctx, u, y)
			require.NoError(t, err)
			var inc, exp decimal.Decimal
			for _, m := range months {
				inc, exp = inc.Add(m.Income), exp.Add(m.Expense)
			}
			yh, _, err := store.YearHistory(ctx, u, y)
			require.NoError(t, err)
			require.True(t, inc.Equal(yh.Income), "year income is not the sum of months")
			require.True(t, exp.Equal(yh.Expense), "year expense is not the sum of months")
		}
	}
}

func testDeleteAndReinsert(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	mustCategory(t, store, "u1", "Food", "", core.Expense)
	svc := services.NewLedgerService(store, nil)
	mustCreate(t, svc, "u1", "10", day(2024, 5, 1), core.Expense, "Food")

	before, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)

	txn := mustCreate(t, svc, "u1", "33.33", day(2024, 5, 7), core.Expense, "Food")
	require.NoError(t, svc.DeleteTransaction(ctx, "u1", txn.ID))
	mustCreate(t, svc, "u1", "33.33", day(2024, 5, 7), core.Expense, "Food")
	after, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)

	require.Len(t, after, 1)
	requireDecimal(t, before[0].Expense.Add(dec("33.33")).String(), after[0].Expense)

	err = svc.DeleteTransaction(ctx, "u1", txn.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func testBalanceEqualsCategorySums(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	mustCategory(t, store, "u1", "Job", "", core.Income)
	mustCategory(t, store, "u1", "Gift", "🎁", core.Income)
	mustCategory(t, store, "u1", "Food", "", core.Expense)
	svc := services.NewLedgerService(store, nil)
	mustCreate(t, svc, "u1", "100.10", day(2024, 1, 3), core.Income, "Job")
	mustCreate(t, svc, "u1", "0.90", day(2024, 2, 3), core.Income, "Gift")
	mustCreate(t, svc, "u1", "12.34", day(2024, 2, 4), core.Expense, "Food")
	mustCreate(t, svc, "u1", "7.66", day(2024, 6, 30), core.Expense, "Food")

	rng, err := resolver.NewRange(day(2024, 1, 1), day(2024, 7, 1))
	require.NoError(t, err)
	b, err := store.TypeTotals(ctx, "u1", rng)
	require.NoError(t, err)
	stats, err := store.CategoryTotals(ctx, "u1", rng)
	require.NoError(t, err)

	var inc, exp decimal.Decimal
	for _, st := range stats {
		if st.Type == core.Income {
			inc = inc.Add(st.TotalAmount)
		} else {
			exp = exp.Add(st.TotalAmount)
		}
	}
	requireDecimal(t, "101", b.Income)
	requireDecimal(t, "20", b.Expense)
	require.True(t, inc.Equal(b.Income))
	require.True(t, exp.Equal(b.Expense))
}

func testEmptyRange(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	mustCategory(t, store, "u1", "Food", "", core.Expense)
	svc := services.NewLedgerService(store, nil)
	mustCreate(t, svc, "u1", "5", day(2024, 1, 10), core.Expense, "Food")

	rng, err := resolver.NewRange(day(2024, 1, 11), day(2024, 1, 11))
	require.NoError(t, err)
	stats, err := store.CategoryTotals(ctx, "u1", rng)
	require.NoError(t, err)
	require.Empty(t, stats)
	b, err := store.TypeTotals(ctx, "u1", rng)
	require.NoError(t, err)
	require.True(t, b.Income.IsZero())
	require.True(t, b.Expense.IsZero())
	txns, err := store.ListTransactions(ctx, "u1", rng)
	require.NoError(t, err)
	require.Empty(t, txns)

	// The upper bound is exclusive.
	rng, err = resolver.NewRange(day(2024, 1, 1), day(2024, 1, 10))
	require.NoError(t, err)
	txns, err = store.ListTransactions(ctx, "u1", rng)
	require.NoError(t, err)
	require.Empty(t, txns)
}

func testCategories(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Food", Icon: "🍔", Type: core.Expense, CreatedAt: now}))
	require.NoError(t, store.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Food", Icon: "🍲", Type: core.Income, CreatedAt: now}))
	require.NoError(t, store.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Bonus", Type: core.Income, CreatedAt: now}))
	require.NoError(t, store.CreateCategory(ctx, core.Category{UserID: "u2", Name: "Food", Type: core.Expense, CreatedAt: now}))

	err := store.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Food", Type: core.Expense, CreatedAt: now})
	require.ErrorIs(t, err, core.ErrDuplicate)
	var de *core.DuplicateError
	require.True(t, errors.As(err, &de))

	all, err := store.ListCategories(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "Bonus", all[0].Name)

	income, err := store.ListCategories(ctx, "u1", core.Income)
	require.NoError(t, err)
	require.Len(t, income, 2)

	require.NoError(t, store.DeleteCategory(ctx, "u1", "Food", core.Expense))
	require.ErrorIs(t, store.DeleteCategory(ctx, "u1", "Food", core.Expense), core.ErrNotFound)

	expense, err := store.ListCategories(ctx, "u1", core.Expense)
	require.NoError(t, err)
	require.Empty(t, expense)
}

func testSettings(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	_, err := store.GetSettings(ctx, "u1")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, store.UpsertSettings(ctx, core.UserSettings{UserID: "u1", Currency: "USD"}))
	require.NoError(t, store.UpsertSettings(ctx, core.UserSettings{UserID: "u1", Currency: "EUR"}))
	us, err := store.GetSettings(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "EUR", us.Currency)
}

func testFailedTxRollsBack(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx ledger.Tx) error {
		if err := tx.AddMonthHistory(ctx, "u1", 2024, 0, dec("5"), decimal.Zero); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	months, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Empty(t, months)
}

func testTxReadsOwnWrites(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	err := store.InTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.InsertTransaction(ctx, core.Transaction{
			ID: "t1", UserID: "u1", Amount: dec("7.25"), Date: day(2024, 5, 1), Type: core.Expense,
			Category: "Food", CreatedAt: now, UpdatedAt: now,
		}))
		require.NoError(t, tx.AddMonthHistory(ctx, "u1", 2024, 4, decimal.Zero, dec("7.25")))
		require.NoError(t, tx.AddYearHistory(ctx, "u1", 2024, decimal.Zero, dec("7.25")))

		rng, err := resolver.Resolve(period.Month, period.Period{Year: 2024, Month: 4})
		require.NoError(t, err)
		txns, err := tx.ListTransactions(ctx, "u1", rng)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		requireDecimal(t, "7.25", txns[0].Amount)

		months, err := tx.MonthHistory(ctx, "u1", 2024)
		require.NoError(t, err)
		require.Len(t, months, 1)
		requireDecimal(t, "7.25", months[0].Expense)

		yh, ok, err := tx.YearHistory(ctx, "u1", 2024)
		require.NoError(t, err)
		require.True(t, ok)
		requireDecimal(t, "7.25", yh.Expense)
		return nil
	})
	require.NoError(t, err)
}

func testConcurrentWriters(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	const writers = 50
	mustCategory(t, store, "u1", "Food", "", core.Expense)
	mustCategory(t, store, "u1", "Salary", "", core.Income)
	svc := services.NewLedgerService(store, nil)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := core.TransactionInput{Amount: dec("1.01"), Date: day(2024, 3, 1+i%28), Type: core.Expense, Category: "Food"}
			if i%5 == 0 {
				in.Type, in.Category = core.Income, "Salary"
			}
			_, err := svc.CreateTransaction(ctx, "u1", in)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	months, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Len(t, months, 1)
	requireDecimal(t, "10.10", months[0].Income)
	requireDecimal(t, "40.40", months[0].Expense)

	yh, ok, err := store.YearHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, ok)
	requireDecimal(t, "10.10", yh.Income)
	requireDecimal(t, "40.40", yh.Expense)
}

func testUserScoping(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	mustCategory(t, store, "alice", "Food", "", core.Expense)
	svc := services.NewLedgerService(store, nil)
	txn := mustCreate(t, svc, "alice", "8", day(2024, 4, 4), core.Expense, "Food")

	_, err := svc.UpdateTransaction(ctx, "bob", txn.ID, core.TransactionInput{
		Amount: dec("1"), Date: day(2024, 4, 4), Type: core.Expense, Category: "Food",
	})
	require.ErrorIs(t, err, core.ErrNotFound)
	require.ErrorIs(t, svc.DeleteTransaction(ctx, "bob", txn.ID), core.ErrNotFound)

	rng, err := resolver.Resolve(period.Year, period.Period{Year: 2024})
	require.NoError(t, err)
	txns, err := store.ListTransactions(ctx, "bob", rng)
	require.NoError(t, err)
	require.Empty(t, txns)
	txns, err = store.ListTransactions(ctx, "alice", rng)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, txn.ID, txns[0].ID)
	requireDecimal(t, "8", txns[0].Amount)
	require.True(t, txns[0].Date.Equal(day(2024, 4, 4)))
}

func testUserYears(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	mustCategory(t, store, "a", "Food", "", core.Expense)
	mustCategory(t, store, "b", "Food", "", core.Expense)
	svc := services.NewLedgerService(store, nil)
	mustCreate(t, svc, "a", "1", day(2022, 1, 1), core.Expense, "Food")
	mustCreate(t, svc, "b", "1", day(2024, 1, 1), core.Expense, "Food")
	mustCreate(t, svc, "a", "1", day(2023, 1, 1), core.Expense, "Food")

	pairs, err := store.UserYears(ctx)
	require.NoError(t, err)
	require.Equal(t, []ledger.UserYear{{UserID: "a", Year: 2022}, {UserID: "a", Year: 2023}, {UserID: "b", Year: 2024}}, pairs)
}
