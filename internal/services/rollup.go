package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

// RollupMaintainer keeps MonthHistory and YearHistory in step with transactions.
// It never opens its own transaction: callers pass the Tx their mutation runs in.
type RollupMaintainer struct{}

// ApplyDelta adds d.Amount (signed) to the income or expense side of the month
// and year rollups covering d.Date. A zero amount is a no-op. Rows may go
// negative; the reconciler reports that as drift.
func (RollupMaintainer) ApplyDelta(ctx context.Context, tx ledger.Tx, d core.Delta) error {
	if d.Amount.IsZero() {
		return nil
	}
	if !d.Type.Valid() {
		return core.NewValidationError("type", "must be income or expense")
	}

	income, expense := decimal.Zero, decimal.Zero
	if d.Type == core.Income {
		income = d.Amount
	} else {
		expense = d.Amount
	}

	year, month := d.Date.Year(), core.MonthIndex(d.Date)
	if err := tx.AddMonthHistory(ctx, d.UserID, year, month, income, expense); err != nil {
		return fmt.Errorf("apply month delta: %w", err)
	}
	if err := tx.AddYearHistory(ctx, d.UserID, year, income, expense); err != nil {
		return fmt.Errorf("apply year delta: %w", err)
	}
	return nil
}

// Add applies t as a positive delta.
func (m RollupMaintainer) Add(ctx context.Context, tx ledger.Tx, t core.Transaction) error {
	return m.ApplyDelta(ctx, tx, deltaOf(t, true))
}

// Remove applies t as a negative delta.
func (m RollupMaintainer) Remove(ctx context.Context, tx ledger.Tx, t core.Transaction) error {
	return m.ApplyDelta(ctx, tx, deltaOf(t, false))
}

func deltaOf(t core.Transaction, add bool) core.Delta {
	return core.Delta{UserID: t.UserID, Date: t.Date, Type: t.Type, Amount: t.Signed(add)}
}
