// Package http serves the dashboard's JSON API.
//
// This file holds the helpers that turn query strings and JSON bodies into
// validated domain input.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/period"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// HistoryParams holds the parsed timeframe query of /api/history-data.
type HistoryParams struct {
	Timeframe period.Timeframe
	Period    period.Period
}

// ParseRangeParams reads the from and to query parameters.
func ParseRangeParams(query url.Values, resolver period.Resolver) (period.Range, error) {
	return resolver.ParseRange(query.Get("from"), query.Get("to"))
}

// ParseHistoryParams reads timeframe, year and month. month is zero-based and
// only required for the month timeframe.
func ParseHistoryParams(query url.Values) (HistoryParams, error) {
	tf, err := period.ParseTimeframe(query.Get("timeframe"))
	if err != nil {
		return HistoryParams{}, err
	}
	year, err := parseIntParam(query, "year", true)
	if err != nil {
		return HistoryParams{}, err
	}
	month, err := parseIntParam(query, "month", tf == period.Month)
	if err != nil {
		return HistoryParams{}, err
	}
	return HistoryParams{Timeframe: tf, Period: period.Period{Year: year, Month: month}}, nil
}

func parseIntParam(query url.Values, name string, required bool) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		if required {
			return 0, core.NewValidationError(name, "is required")
		}
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

// ParseTypeParam reads an optional transaction type. An empty value means all types.
func ParseTypeParam(query url.Values) (core.TransactionType, error) {
	v := strings.TrimSpace(query.Get("type"))
	if v == "" {
		return "", nil
	}
	return core.ParseTransactionType(v)
}

// DecodeJSON decodes a bounded JSON object body into v. Unknown fields are rejected.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return core.NewValidationError("body", "is empty")
		case errors.As(err, &maxErr):
			return core.NewValidationError("body", "too large")
		default:
			return core.NewValidationError("body", err.Error())
		}
	}
	if dec.More() {
		return core.NewValidationError("body", "must contain a single JSON object")
	}
	return nil
}

// TransactionRequest is the body of POST and PUT /api/transactions.
type TransactionRequest struct {
	Amount      json.RawMessage `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
}

// Input validates the request and converts it to a domain input. Amount is
// accepted as a JSON number or a decimal string.
func (req TransactionRequest) Input() (core.TransactionInput, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.TransactionInput{}, err
	}
	date, err := parseDay(req.Date)
	if err != nil {
		return core.TransactionInput{}, err
	}
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		return core.TransactionInput{}, err
	}
	in := core.TransactionInput{
		Amount:      amount,
		Description: sanitizeInput(req.Description),
		Date:        date,
		Type:        typ,
		Category:    sanitizeInput(req.Category),
	}
	return in, in.Validate()
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, core.NewValidationError("amount", "is required")
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, core.NewValidationError("amount", "not a number")
		}
		return core.ParseAmount(str)
	}
	return core.ParseAmount(s)
}

// parseDay accepts YYYY-MM-DD or RFC3339 and keeps the calendar date as written.
func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.NewValidationError("date", "is required")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return core.TruncateDay(t), nil
	}
	return time.Time{}, core.NewValidationError("date", "expected YYYY-MM-DD or RFC3339")
}

// CategoryRequest is the body of POST /api/categories.
type CategoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
	Type string `json:"type"`
}

func (req CategoryRequest) Category() (core.Category, error) {
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		return core.Category{}, err
	}
	c := core.Category{
		Name: sanitizeInput(req.Name),
		Icon: sanitizeInput(req.Icon),
		Type: typ,
	}
	return c, c.Validate()
}

// SettingsRequest is the body of PUT /api/settings.
type SettingsRequest struct {
	Currency string `json:"currency"`
}

// sanitizeInput removes control characters other than tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// pathID returns the {id} wildcard or a validation error when it is blank.
func pathID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", core.NewValidationError("id", "is required")
	}
	if len(id) > 64 {
		return "", core.NewValidationError("id", fmt.Sprintf("too long (max %d characters)", 64))
	}
	return id, nil
}
