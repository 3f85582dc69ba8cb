// Package period validates and normalises the date selectors used by the stats
// endpoints: raw [from, to) ranges and (timeframe, year, month) pointers.
package period

import (
	"fmt"
	"strings"
	"time"

	"bilancio/internal/core"
)

const (
	Month Timeframe = "month"
	Year  Timeframe = "year"
)

// DefaultMaxSpan bounds a raw range to roughly five years.
const DefaultMaxSpan = 1830 * 24 * time.Hour

type (
	Timeframe string

	// Period points at a calendar month. Month is zero-based.
	Period struct {
		Year  int
		Month int
	}

	// Range is a half-open interval [From, To) with both bounds at UTC midnight.
	Range struct {
		From time.Time
		To   time.Time
	}

	// Resolver carries the configured bounds.
	Resolver struct {
		MaxSpan time.Duration
	}
)

// NewResolver returns a resolver; a non-positive maxSpan selects DefaultMaxSpan.
func NewResolver(maxSpan time.Duration) Resolver {
	if maxSpan <= 0 {
		maxSpan = DefaultMaxSpan
	}
	return Resolver{MaxSpan: maxSpan}
}

// ParseTimeframe accepts "month" or "year".
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	switch tf {
	case Month, Year:
		return tf, nil
	}
	return "", core.NewValidationError("timeframe", "must be month or year")
}

func (p Period) Validate() error {
	if p.Month < 0 || p.Month > 11 {
		return core.NewValidationError("month", "must be between 0 and 11")
	}
	if p.Year < 1000 || p.Year > 9999 {
		return core.NewValidationError("year", "must be a 4-digit year")
	}
	return nil
}

// Resolve converts a timeframe and period into the concrete [from, to) range.
func (r Resolver) Resolve(tf Timeframe, p Period) (Range, error) {
	if err := p.Validate(); err != nil {
		return Range{}, err
	}
	switch tf {
	case Month:
		from := time.Date(p.Year, time.Month(p.Month+1), 1, 0, 0, 0, 0, time.UTC)
		return Range{From: from, To: from.AddDate(0, 1, 0)}, nil
	case Year:
		from := time.Date(p.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return Range{From: from, To: from.AddDate(1, 0, 0)}, nil
	}
	return Range{}, core.NewValidationError("timeframe", "must be month or year")
}

// NewRange normalises both bounds to UTC midnight and checks ordering and span.
// from == to is a valid empty range.
func (r Resolver) NewRange(from, to time.Time) (Range, error) {
	if from.IsZero() || to.IsZero() {
		return Range{}, core.NewValidationError("range", "from and to are required")
	}
	rng := Range{From: core.TruncateDay(from), To: core.TruncateDay(to)}
	if rng.From.After(rng.To) {
		return Range{}, core.NewValidationError("range", "from must not be after to")
	}
	if r.MaxSpan > 0 && rng.To.Sub(rng.From) > r.MaxSpan {
		return Range{}, core.NewValidationError("range", fmt.Sprintf("span exceeds %d days", int(r.MaxSpan.Hours()/24)))
	}
	return rng, nil
}

// ParseRange parses YYYY-MM-DD or RFC3339 bounds and delegates to NewRange.
func (r Resolver) ParseRange(fromStr, toStr string) (Range, error) {
	from, err := parseDate(fromStr)
	if err != nil {
		return Range{}, core.NewValidationError("from", err.Error())
	}
	to, err := parseDate(toStr)
	if err != nil {
		return Range{}, core.NewValidationError("to", err.Error())
	}
	return r.NewRange(from, to)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("is required")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339")
}

// Contains reports whether t falls in [From, To).
func (rng Range) Contains(t time.Time) bool {
	return !t.Before(rng.From) && t.Before(rng.To)
}

func (rng Range) Empty() bool {
	return !rng.From.Before(rng.To)
}

func (rng Range) String() string {
	return rng.From.Format("2006-01-02") + ".." + rng.To.Format("2006-01-02")
}
