package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validInput() TransactionInput {
	return TransactionInput{
		Amount:   decimal.NewFromInt(10),
		Date:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Type:     Expense,
		Category: "Food",
	}
}

func TestTransactionInput_Validate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*TransactionInput)
		field string
	}{
		{"valid", func(*TransactionInput) {}, ""},
		{"zero amount", func(in *TransactionInput) { in.Amount = decimal.Zero }, "amount"},
		{"missing date", func(in *TransactionInput) { in.Date = time.Time{} }, "date"},
		{"year out of range", func(in *TransactionInput) { in.Date = time.Date(999, 1, 1, 0, 0, 0, 0, time.UTC) }, "date"},
		{"bad type", func(in *TransactionInput) { in.Type = "transfer" }, "type"},
		{"long description", func(in *TransactionInput) { in.Description = strings.Repeat("x", 201) }, "description"},
		{"blank category", func(in *TransactionInput) { in.Category = " " }, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.edit(&in)
			err := in.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("Validate() = %v, want validation error on %q", err, tt.field)
			}
		})
	}
}

func TestCategory_Validate(t *testing.T) {
	ok := Category{Name: "Food", Icon: "🍔", Type: Expense}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []Category{
		{Name: "  ", Type: Expense},
		{Name: strings.Repeat("n", 51), Type: Expense},
		{Name: "Food", Icon: strings.Repeat("i", 21), Type: Expense},
		{Name: "Food"},
	}
	for _, c := range bad {
		if err := c.Validate(); !IsValidation(err) {
			t.Errorf("Validate(%+v) = %v, want validation error", c, err)
		}
	}
}

func TestParseTransactionType(t *testing.T) {
	if got, err := ParseTransactionType(" INCOME "); err != nil || got != Income {
		t.Errorf("ParseTransactionType = %q, %v", got, err)
	}
	if _, err := ParseTransactionType("loan"); !IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestTruncateDayKeepsCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	got := TruncateDay(time.Date(2024, 3, 31, 23, 30, 0, 0, loc))
	want := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("TruncateDay = %s, want %s", got, want)
	}
	if MonthIndex(got) != 2 {
		t.Errorf("MonthIndex = %d, want 2", MonthIndex(got))
	}
}

func TestErrors(t *testing.T) {
	dup := fmt.Errorf("create category: %w", &DuplicateError{Kind: "category", Key: "Food"})
	if !errors.Is(dup, ErrDuplicate) {
		t.Error("DuplicateError should match ErrDuplicate")
	}
	cause := errors.New("database is locked")
	err := Unavailable("insert transaction", cause)
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, cause) {
		t.Errorf("Unavailable should wrap both sentinel and cause: %v", err)
	}
	if Unavailable("noop", nil) != nil {
		t.Error("Unavailable(nil) should be nil")
	}
}

func TestBalanceNet(t *testing.T) {
	b := Balance{Income: decimal.RequireFromString("10.5"), Expense: decimal.RequireFromString("20")}
	if got := b.Net().StringFixed(2); got != "-9.50" {
		t.Errorf("Net = %s", got)
	}
}
