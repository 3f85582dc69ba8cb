// Package core holds the ledger domain types and the money helpers shared by
// every store implementation.
//
// Amounts are carried as decimal.Decimal in the domain and persisted as integer
// cents, so rollup increments never touch binary floating point.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds a single transaction so cent totals stay far inside int64.
var MaxAmount = decimal.NewFromInt(1_000_000_000_000)

// ParseAmount parses a user supplied amount. Both "12.34" and "12,34" are accepted.
// The value must be positive with at most two fractional digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, NewValidationError("amount", "is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, NewValidationError("amount", "must be a plain positive number")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", "not a number")
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount checks the invariants every stored amount satisfies.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return NewValidationError("amount", "must be greater than zero")
	}
	if !d.Equal(d.Round(2)) {
		return NewValidationError("amount", "at most two decimal places")
	}
	if d.GreaterThan(MaxAmount) {
		return NewValidationError("amount", "too large")
	}
	return nil
}

// ToCents converts an amount to integer minor units.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer minor units back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
