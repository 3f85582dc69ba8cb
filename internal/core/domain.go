package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	maxDescriptionLen  = 200
	maxCategoryNameLen = 50
	maxCategoryIconLen = 20
)

type (
	TransactionType string

	// Transaction is a single ledger entry. Amount is always positive; Type
	// decides whether it counts as income or expense.
	Transaction struct {
		ID           string
		UserID       string
		Amount       decimal.Decimal
		Description  string
		Date         time.Time // UTC midnight
		Type         TransactionType
		Category     string
		CategoryIcon string // copied from the category at creation time
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// TransactionInput carries the user-editable fields of a transaction.
	TransactionInput struct {
		Amount      decimal.Decimal
		Description string
		Date        time.Time
		Type        TransactionType
		Category    string
	}

	Category struct {
		UserID    string
		Name      string
		Icon      string
		Type      TransactionType
		CreatedAt time.Time
	}

	UserSettings struct {
		UserID   string
		Currency string
	}

	// MonthHistory is the rollup of one user's transactions in a calendar month.
	// Month is zero-based (0 = January).
	MonthHistory struct {
		UserID  string
		Year    int
		Month   int
		Income  decimal.Decimal
		Expense decimal.Decimal
	}

	// YearHistory is the rollup of one user's transactions in a calendar year.
	YearHistory struct {
		UserID  string
		Year    int
		Income  decimal.Decimal
		Expense decimal.Decimal
	}
)

// ParseTransactionType accepts "income" or "expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", NewValidationError("type", "must be income or expense")
	}
	return t, nil
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) String() string { return string(t) }

// TruncateDay returns UTC midnight of the calendar date t carries in its own location.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthIndex returns the zero-based month of t.
func MonthIndex(t time.Time) int {
	return int(t.Month()) - 1
}

func (in TransactionInput) Validate() error {
	if err := ValidateAmount(in.Amount); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return NewValidationError("date", "is required")
	}
	if y := in.Date.Year(); y < 1000 || y > 9999 {
		return NewValidationError("date", "year out of range")
	}
	if !in.Type.Valid() {
		return NewValidationError("type", "must be income or expense")
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLen {
		return NewValidationError("description", "too long (max 200 characters)")
	}
	if strings.TrimSpace(in.Category) == "" {
		return NewValidationError("category", "is required")
	}
	return nil
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return NewValidationError("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxCategoryNameLen {
		return NewValidationError("name", "too long (max 50 characters)")
	}
	if utf8.RuneCountInString(c.Icon) > maxCategoryIconLen {
		return NewValidationError("icon", "too long (max 20 characters)")
	}
	if !c.Type.Valid() {
		return NewValidationError("type", "must be income or expense")
	}
	return nil
}

// Signed returns the amount as a positive delta when add is true, negative otherwise.
func (t Transaction) Signed(add bool) decimal.Decimal {
	if add {
		return t.Amount
	}
	return t.Amount.Neg()
}
