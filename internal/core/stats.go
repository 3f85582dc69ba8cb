package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryStat is the total of one (type, category, icon) group in a range.
type CategoryStat struct {
	Type         TransactionType
	Category     string
	CategoryIcon string
	TotalAmount  decimal.Decimal
	Percent      decimal.Decimal // share of the type total, 0-100
}

// Balance holds income and expense sums in a range. Both are zero when absent.
type Balance struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

func (b Balance) Net() decimal.Decimal {
	return b.Income.Sub(b.Expense)
}

// HistoryBucket is one point of a history series. Day is zero for monthly buckets.
type HistoryBucket struct {
	Year    int
	Month   int
	Day     int
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Delta is a signed adjustment for the rollups covering Date.
type Delta struct {
	UserID string
	Date   time.Time
	Type   TransactionType
	Amount decimal.Decimal
}
