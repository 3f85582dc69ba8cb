package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
)

func TestLookup(t *testing.T) {
	c, err := Lookup(" eur ")
	require.NoError(t, err)
	require.Equal(t, "EUR", c.Code)

	_, err = Lookup("CHF")
	require.True(t, core.IsValidation(err), "valid ISO code outside the supported list")

	_, err = Lookup("NOPE")
	require.True(t, core.IsValidation(err))

	require.Len(t, Supported(), 5)
}

func TestFormatter(t *testing.T) {
	tests := []struct {
		code   string
		amount string
		want   string
	}{
		{"USD", "1234.5", "$1,234.50"},
		{"USD", "-3", "-$3.00"},
		{"EUR", "1234.5", "1.234,50 €"},
		{"GBP", "0.99", "£0.99"},
		{"JPY", "1500", "￥1,500"},
	}
	for _, tt := range tests {
		t.Run(tt.code+" "+tt.amount, func(t *testing.T) {
			f := MustFormatter(tt.code)
			require.Equal(t, tt.code, f.Currency().Code)
			require.Equal(t, tt.want, f.Format(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestMustFormatterPanicsOnUnknownCode(t *testing.T) {
	require.Panics(t, func() { MustFormatter("XYZ") })
}
