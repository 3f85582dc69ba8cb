package http

import (
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/currency"
	"bilancio/internal/services"
)

// Amounts are rendered with two decimals as strings so clients never see floats.
func money(d decimal.Decimal) string { return d.StringFixed(2) }

type categoryStatView struct {
	Type         string `json:"type"`
	Category     string `json:"category"`
	CategoryIcon string `json:"categoryIcon"`
	TotalAmount  string `json:"totalAmount"`
	Percent      string `json:"percent"`
}

func categoryStatsView(stats []core.CategoryStat) []categoryStatView {
	out := make([]categoryStatView, 0, len(stats))
	for _, st := range stats {
		out = append(out, categoryStatView{
			Type:         st.Type.String(),
			Category:     st.Category,
			CategoryIcon: st.CategoryIcon,
			TotalAmount:  money(st.TotalAmount),
			Percent:      money(st.Percent),
		})
	}
	return out
}

type balanceView struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Balance string `json:"balance"`
}

func newBalanceView(b core.Balance) balanceView {
	return balanceView{Income: money(b.Income), Expense: money(b.Expense), Balance: money(b.Net())}
}

type overviewView struct {
	Currency   string             `json:"currency"`
	Balance    balanceView        `json:"balance"`
	Categories []categoryStatView `json:"categories"`
}

type historyBucketView struct {
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Day     int    `json:"day,omitempty"`
	Income  string `json:"income"`
	Expense string `json:"expense"`
}

func historyView(buckets []core.HistoryBucket) []historyBucketView {
	out := make([]historyBucketView, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, historyBucketView{
			Year:    b.Year,
			Month:   b.Month,
			Day:     b.Day,
			Income:  money(b.Income),
			Expense: money(b.Expense),
		})
	}
	return out
}

type transactionView struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	Type            string `json:"type"`
	Category        string `json:"category"`
	CategoryIcon    string `json:"categoryIcon"`
	Description     string `json:"description"`
	Amount          string `json:"amount"`
	FormattedAmount string `json:"formattedAmount,omitempty"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func newTransactionView(t core.Transaction, formatted string) transactionView {
	return transactionView{
		ID:              t.ID,
		Date:            t.Date.Format("2006-01-02"),
		Type:            t.Type.String(),
		Category:        t.Category,
		CategoryIcon:    t.CategoryIcon,
		Description:     t.Description,
		Amount:          money(t.Amount),
		FormattedAmount: formatted,
		CreatedAt:       t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func transactionHistoryView(views []services.TransactionView) []transactionView {
	out := make([]transactionView, 0, len(views))
	for _, v := range views {
		out = append(out, newTransactionView(v.Transaction, v.FormattedAmount))
	}
	return out
}

type categoryView struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
	Type string `json:"type"`
}

func categoriesView(cats []core.Category) []categoryView {
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryView{Name: c.Name, Icon: c.Icon, Type: c.Type.String()})
	}
	return out
}

type settingsView struct {
	Currency string `json:"currency"`
}

type currencyView struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Symbol string `json:"symbol"`
}

func currenciesView(list []currency.Currency) []currencyView {
	out := make([]currencyView, 0, len(list))
	for _, c := range list {
		out = append(out, currencyView{Code: c.Code, Label: c.Label, Symbol: c.Symbol})
	}
	return out
}
