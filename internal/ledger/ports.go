// Package ledger defines the ports every ledger store implements.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/period"
)

// Ports for ledger store adapters.
type (
	// Tx is a unit of work. Every method runs inside the enclosing store transaction.
	Tx interface {
		RollupSource

		InsertTransaction(ctx context.Context, t core.Transaction) error
		// GetTransaction returns core.ErrNotFound when id does not exist for userID.
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, userID, id string) error

		// AddMonthHistory atomically increments the (userID, year, month) rollup,
		// creating it when absent.
		AddMonthHistory(ctx context.Context, userID string, year, month int, income, expense decimal.Decimal) error
		// AddYearHistory is AddMonthHistory at year granularity.
		AddYearHistory(ctx context.Context, userID string, year int, income, expense decimal.Decimal) error
		// SetMonthHistory and SetYearHistory overwrite rollup rows; used by repairs only.
		SetMonthHistory(ctx context.Context, h core.MonthHistory) error
		SetYearHistory(ctx context.Context, h core.YearHistory) error

		GetCategory(ctx context.Context, userID, name string, typ core.TransactionType) (core.Category, error)
	}

	// RollupSource is what a rollup recomputation reads. Inside a Tx the reads
	// see the transaction's own writes and no concurrent commits.
	RollupSource interface {
		// ListTransactions returns transactions in rng, newest first.
		ListTransactions(ctx context.Context, userID string, rng period.Range) ([]core.Transaction, error)
		// MonthHistory returns the year's month rows ordered by month.
		MonthHistory(ctx context.Context, userID string, year int) ([]core.MonthHistory, error)
		YearHistory(ctx context.Context, userID string, year int) (core.YearHistory, bool, error)
	}

	// StatsReader answers the grouped aggregation queries.
	StatsReader interface {
		// CategoryTotals groups transactions in rng by (type, category, icon).
		CategoryTotals(ctx context.Context, userID string, rng period.Range) ([]core.CategoryStat, error)
		// TypeTotals sums transactions in rng by type.
		TypeTotals(ctx context.Context, userID string, rng period.Range) (core.Balance, error)
		// DailyTotals sums transactions in rng by calendar day, ordered by date.
		DailyTotals(ctx context.Context, userID string, rng period.Range) ([]core.HistoryBucket, error)
		// ListTransactions returns transactions in rng, newest first.
		ListTransactions(ctx context.Context, userID string, rng period.Range) ([]core.Transaction, error)
	}

	// HistoryReader reads the rollup tables.
	HistoryReader interface {
		MonthHistory(ctx context.Context, userID string, year int) ([]core.MonthHistory, error)
		YearHistory(ctx context.Context, userID string, year int) (core.YearHistory, bool, error)
		// HistoryYears returns the distinct years with a MonthHistory row, ascending.
		HistoryYears(ctx context.Context, userID string) ([]int, error)
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) error
		DeleteCategory(ctx context.Context, userID, name string, typ core.TransactionType) error
		ListCategories(ctx context.Context, userID string, typ core.TransactionType) ([]core.Category, error)
	}

	SettingsStore interface {
		// GetSettings returns core.ErrNotFound when the user has no settings row.
		GetSettings(ctx context.Context, userID string) (core.UserSettings, error)
		UpsertSettings(ctx context.Context, s core.UserSettings) error
	}

	// AuditReader feeds the reconciler.
	AuditReader interface {
		// UserYears lists every (user, year) present in transactions or rollups.
		UserYears(ctx context.Context) ([]UserYear, error)
	}

	// Store is the full ledger store.
	Store interface {
		StatsReader
		HistoryReader
		CategoryStore
		SettingsStore
		AuditReader

		// InTx runs fn in a single atomic transaction; any error rolls back.
		InTx(ctx context.Context, fn func(tx Tx) error) error
		Ping(ctx context.Context) error
		Close() error
	}
)

// UserYear identifies one rollup year of one user.
type UserYear struct {
	UserID string
	Year   int
}
