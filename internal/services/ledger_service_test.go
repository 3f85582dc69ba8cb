package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
)

type recordingPublisher struct {
	mu       sync.Mutex
	requests []string
	err      error
}

func (p *recordingPublisher) PublishRollupAudit(_ context.Context, userID string, year int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, userID+"/"+strconv.Itoa(year))
	return p.err
}

func newLedgerFixture(t *testing.T) (*memory.Store, *LedgerService, *recordingPublisher) {
	t.Helper()
	store := memory.New()
	cats := NewCategoryService(store)
	for _, c := range []core.Category{
		{Name: "Salary", Icon: "💼", Type: core.Income},
		{Name: "Food", Icon: "🍔", Type: core.Expense},
		{Name: "Fun", Icon: "🎉", Type: core.Expense},
	} {
		_, err := cats.CreateCategory(context.Background(), "u1", c)
		require.NoError(t, err)
	}
	pub := &recordingPublisher{}
	svc := NewLedgerService(store, pub)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return store, svc, pub
}

func input(amount string, date time.Time, typ core.TransactionType, category string) core.TransactionInput {
	return core.TransactionInput{Amount: decimal.RequireFromString(amount), Date: date, Type: typ, Category: category}
}

func march(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func TestCreateTransaction(t *testing.T) {
	ctx := context.Background()
	store, svc, pub := newLedgerFixture(t)

	txn, err := svc.CreateTransaction(ctx, "u1", core.TransactionInput{
		Amount: decimal.RequireFromString("12.50"), Description: "  lunch ", Date: march(3).Add(15 * time.Hour),
		Type: core.Expense, Category: " Food ",
	})
	require.NoError(t, err)
	require.NotEmpty(t, txn.ID)
	require.Equal(t, "lunch", txn.Description)
	require.Equal(t, "Food", txn.Category)
	require.Equal(t, "🍔", txn.CategoryIcon)
	require.True(t, txn.Date.Equal(march(3)))
	require.Equal(t, []string{"u1/2024"}, pub.requests)

	months, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Len(t, months, 1)
	require.True(t, months[0].Expense.Equal(decimal.RequireFromString("12.5")))
}

func TestCreateTransaction_Rejections(t *testing.T) {
	ctx := context.Background()
	store, svc, pub := newLedgerFixture(t)

	_, err := svc.CreateTransaction(ctx, "", input("1", march(1), core.Expense, "Food"))
	require.ErrorIs(t, err, core.ErrNotAuthenticated)

	_, err = svc.CreateTransaction(ctx, "u1", input("1", march(1), core.Income, "Food"))
	require.True(t, core.IsValidation(err), "category exists only as expense")

	_, err = svc.CreateTransaction(ctx, "u2", input("1", march(1), core.Expense, "Food"))
	require.True(t, core.IsValidation(err), "categories are per user")

	months, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Empty(t, months)
	require.Empty(t, pub.requests)
}

func TestUpdateTransaction_MovesRollups(t *testing.T) {
	ctx := context.Background()
	store, svc, pub := newLedgerFixture(t)

	txn, err := svc.CreateTransaction(ctx, "u1", input("100", march(10), core.Expense, "Food"))
	require.NoError(t, err)

	updated, err := svc.UpdateTransaction(ctx, "u1", txn.ID, input("40", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), core.Expense, "Fun"))
	require.NoError(t, err)
	require.Equal(t, "🎉", updated.CategoryIcon)
	require.Equal(t, txn.CreatedAt, updated.CreatedAt)

	mar, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, mar[0].Expense.IsZero())
	dec, err := store.MonthHistory(ctx, "u1", 2023)
	require.NoError(t, err)
	require.Equal(t, 11, dec[0].Month)
	require.True(t, dec[0].Expense.Equal(decimal.NewFromInt(40)))

	y24, _, err := store.YearHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, y24.Expense.IsZero())
	y23, _, err := store.YearHistory(ctx, "u1", 2023)
	require.NoError(t, err)
	require.True(t, y23.Expense.Equal(decimal.NewFromInt(40)))

	require.Equal(t, []string{"u1/2024", "u1/2024", "u1/2023"}, pub.requests)
}

func TestUpdateTransaction_DeletedCategory(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newLedgerFixture(t)

	txn, err := svc.CreateTransaction(ctx, "u1", input("5", march(1), core.Expense, "Fun"))
	require.NoError(t, err)
	require.NoError(t, NewCategoryService(store).DeleteCategory(ctx, "u1", "Fun", core.Expense))

	updated, err := svc.UpdateTransaction(ctx, "u1", txn.ID, input("6", march(2), core.Expense, "Fun"))
	require.NoError(t, err)
	require.Equal(t, "🎉", updated.CategoryIcon, "icon is kept from the original transaction")

	_, err = svc.UpdateTransaction(ctx, "u1", txn.ID, input("6", march(2), core.Income, "Fun"))
	require.True(t, core.IsValidation(err))
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newLedgerFixture(t)

	txn, err := svc.CreateTransaction(ctx, "u1", input("9.99", march(1), core.Income, "Salary"))
	require.NoError(t, err)
	require.ErrorIs(t, svc.DeleteTransaction(ctx, "u2", txn.ID), core.ErrNotFound)
	require.NoError(t, svc.DeleteTransaction(ctx, "u1", txn.ID))
	require.ErrorIs(t, svc.DeleteTransaction(ctx, "u1", txn.ID), core.ErrNotFound)

	yh, ok, err := store.YearHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, yh.Income.IsZero())
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	_, svc, pub := newLedgerFixture(t)
	pub.err = errors.New("broker down")

	_, err := svc.CreateTransaction(ctx, "u1", input("1", march(1), core.Expense, "Food"))
	require.NoError(t, err)
	require.Len(t, pub.requests, 1)
}

func TestApplyDelta(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	var m RollupMaintainer

	err := store.InTx(ctx, func(tx ledger.Tx) error {
		if err := m.ApplyDelta(ctx, tx, core.Delta{UserID: "u1", Date: march(1), Type: core.Expense, Amount: decimal.Zero}); err != nil {
			return err
		}
		return m.ApplyDelta(ctx, tx, core.Delta{UserID: "u1", Date: march(1), Type: core.Income, Amount: decimal.NewFromInt(-3)})
	})
	require.NoError(t, err)

	months, err := store.MonthHistory(ctx, "u1", 2024)
	require.NoError(t, err)
	require.Len(t, months, 1, "zero delta must not create rows")
	require.True(t, months[0].Income.Equal(decimal.NewFromInt(-3)), "negative rollups are tolerated")

	err = store.InTx(ctx, func(tx ledger.Tx) error {
		return m.ApplyDelta(ctx, tx, core.Delta{UserID: "u1", Date: march(1), Type: "bogus", Amount: decimal.NewFromInt(1)})
	})
	require.True(t, core.IsValidation(err))
}
