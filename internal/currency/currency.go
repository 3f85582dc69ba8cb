// Package currency maps a user's ISO currency code to a locale-aware formatter.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"bilancio/internal/core"
)

// Default is used for users that never picked a currency.
const Default = "USD"

// Currency is one selectable display currency.
type Currency struct {
	Code   string
	Label  string
	Locale string
	Symbol string
	suffix bool // symbol after the number in this locale
}

var supported = []Currency{
	{Code: "USD", Label: "$ Dollar", Locale: "en-US", Symbol: "$"},
	{Code: "EUR", Label: "€ Euro", Locale: "de-DE", Symbol: "€", suffix: true},
	{Code: "JPY", Label: "¥ Yen", Locale: "ja-JP", Symbol: "￥"},
	{Code: "GBP", Label: "£ Pound", Locale: "en-GB", Symbol: "£"},
	{Code: "INR", Label: "₹ Rupee", Locale: "en-IN", Symbol: "₹"},
}

// Supported returns the selectable currencies in display order.
func Supported() []Currency {
	return append([]Currency(nil), supported...)
}

// Lookup validates code and returns its definition.
func Lookup(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := currency.ParseISO(code); err != nil {
		return Currency{}, core.NewValidationError("currency", "unknown ISO 4217 code")
	}
	for _, c := range supported {
		if c.Code == code {
			return c, nil
		}
	}
	return Currency{}, core.NewValidationError("currency", "not supported")
}

// Formatter renders amounts for one currency.
type Formatter struct {
	cur     Currency
	scale   int
	printer *message.Printer
}

// NewFormatter returns the formatter for code.
func NewFormatter(code string) (*Formatter, error) {
	c, err := Lookup(code)
	if err != nil {
		return nil, err
	}
	unit := currency.MustParseISO(c.Code)
	scale, _ := currency.Standard.Rounding(unit)
	return &Formatter{
		cur:     c,
		scale:   scale,
		printer: message.NewPrinter(language.MustParse(c.Locale)),
	}, nil
}

// MustFormatter is NewFormatter for codes known to be supported.
func MustFormatter(code string) *Formatter {
	f, err := NewFormatter(code)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Formatter) Currency() Currency { return f.cur }

// Format renders d with locale grouping, the currency's minor-unit scale and symbol.
func (f *Formatter) Format(d decimal.Decimal) string {
	neg := d.IsNegative()
	v := d.Abs().Round(int32(f.scale)).InexactFloat64()
	num := f.printer.Sprint(number.Decimal(v, number.Scale(f.scale)))
	var s string
	if f.cur.suffix {
		s = num + " " + f.cur.Symbol
	} else {
		s = f.cur.Symbol + num
	}
	if neg {
		return "-" + s
	}
	return s
}
