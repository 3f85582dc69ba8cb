// Package memory is an in-process ledger store. It mirrors the SQLite store's
// semantics and is used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/period"
)

var _ ledger.Store = (*Store)(nil)

type (
	categoryKey struct {
		userID string
		name   string
		typ    core.TransactionType
	}

	monthKey struct {
		userID string
		year   int
		month  int
	}

	yearKey struct {
		userID string
		year   int
	}

	state struct {
		txns       map[string]core.Transaction
		categories map[categoryKey]core.Category
		settings   map[string]core.UserSettings
		months     map[monthKey]core.MonthHistory
		years      map[yearKey]core.YearHistory
	}
)

// Store keeps the whole ledger in maps guarded by a RWMutex. Writers are
// serialised, so rollup read-modify-write cannot lose updates.
type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		txns:       map[string]core.Transaction{},
		categories: map[categoryKey]core.Category{},
		settings:   map[string]core.UserSettings{},
		months:     map[monthKey]core.MonthHistory{},
		years:      map[yearKey]core.YearHistory{},
	}}
}

func (s *state) clone() *state {
	c := &state{
		txns:       make(map[string]core.Transaction, len(s.txns)),
		categories: make(map[categoryKey]core.Category, len(s.categories)),
		settings:   make(map[string]core.UserSettings, len(s.settings)),
		months:     make(map[monthKey]core.MonthHistory, len(s.months)),
		years:      make(map[yearKey]core.YearHistory, len(s.years)),
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	for k, v := range s.months {
		c.months[k] = v
	}
	for k, v := range s.years {
		c.years[k] = v
	}
	return c
}

// InTx runs fn against a private copy of the state and publishes it only when
// fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type tx struct {
	st *state
}

func (t *tx) InsertTransaction(_ context.Context, txn core.Transaction) error {
	if _, ok := t.st.txns[txn.ID]; ok {
		return &core.DuplicateError{Kind: "transaction", Key: txn.ID}
	}
	t.st.txns[txn.ID] = txn
	return nil
}

func (t *tx) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	txn, ok := t.st.txns[id]
	if !ok || txn.UserID != userID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return txn, nil
}

func (t *tx) UpdateTransaction(ctx context.Context, txn core.Transaction) error {
	if _, err := t.GetTransaction(ctx, txn.UserID, txn.ID); err != nil {
		return err
	}
	t.st.txns[txn.ID] = txn
	return nil
}

func (t *tx) DeleteTransaction(ctx context.Context, userID, id string) error {
	if _, err := t.GetTransaction(ctx, userID, id); err != nil {
		return err
	}
	delete(t.st.txns, id)
	return nil
}

func (t *tx) AddMonthHistory(_ context.Context, userID string, year, month int, income, expense decimal.Decimal) error {
	k := monthKey{userID, year, month}
	h, ok := t.st.months[k]
	if !ok {
		h = core.MonthHistory{UserID: userID, Year: year, Month: month}
	}
	h.Income = h.Income.Add(income)
	h.Expense = h.Expense.Add(expense)
	t.st.months[k] = h
	return nil
}

func (t *tx) AddYearHistory(_ context.Context, userID string, year int, income, expense decimal.Decimal) error {
	k := yearKey{userID, year}
	h, ok := t.st.years[k]
	if !ok {
		h = core.YearHistory{UserID: userID, Year: year}
	}
	h.Income = h.Income.Add(income)
	h.Expense = h.Expense.Add(expense)
	t.st.years[k] = h
	return nil
}

func (t *tx) SetMonthHistory(_ context.Context, h core.MonthHistory) error {
	t.st.months[monthKey{h.UserID, h.Year, h.Month}] = h
	return nil
}

func (t *tx) SetYearHistory(_ context.Context, h core.YearHistory) error {
	t.st.years[yearKey{h.UserID, h.Year}] = h
	return nil
}

func (t *tx) ListTransactions(_ context.Context, userID string, rng period.Range) ([]core.Transaction, error) {
	return t.st.listTransactions(userID, rng), nil
}

func (t *tx) MonthHistory(_ context.Context, userID string, year int) ([]core.MonthHistory, error) {
	return t.st.monthHistory(userID, year), nil
}

func (t *tx) YearHistory(_ context.Context, userID string, year int) (core.YearHistory, bool, error) {
	h, ok := t.st.years[yearKey{userID, year}]
	return h, ok, nil
}

func (t *tx) GetCategory(_ context.Context, userID, name string, typ core.TransactionType) (core.Category, error) {
	c, ok := t.st.categories[categoryKey{userID, name, typ}]
	if !ok {
		return core.Category{}, fmt.Errorf("category %s/%s: %w", typ, name, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) inRange(userID string, rng period.Range, fn func(core.Transaction)) {
	for _, txn := range s.st.txns {
		if txn.UserID == userID && rng.Contains(txn.Date) {
			fn(txn)
		}
	}
}

func (s *Store) CategoryTotals(_ context.Context, userID string, rng period.Range) ([]core.CategoryStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type groupKey struct {
		typ      core.TransactionType
		category string
		icon     string
	}
	groups := map[groupKey]decimal.Decimal{}
	s.inRange(userID, rng, func(txn core.Transaction) {
		k := groupKey{txn.Type, txn.Category, txn.CategoryIcon}
		groups[k] = groups[k].Add(txn.Amount)
	})

	out := make([]core.CategoryStat, 0, len(groups))
	for k, total := range groups {
		out = append(out, core.CategoryStat{Type: k.typ, Category: k.category, CategoryIcon: k.icon, TotalAmount: total})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.TotalAmount.Cmp(b.TotalAmount); c != 0 {
			return c > 0
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.CategoryIcon < b.CategoryIcon
	})
	return out, nil
}

func (s *Store) TypeTotals(_ context.Context, userID string, rng period.Range) (core.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b core.Balance
	s.inRange(userID, rng, func(txn core.Transaction) {
		if txn.Type == core.Income {
			b.Income = b.Income.Add(txn.Amount)
		} else {
			b.Expense = b.Expense.Add(txn.Amount)
		}
	})
	return b, nil
}

func (s *Store) DailyTotals(_ context.Context, userID string, rng period.Range) ([]core.HistoryBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := map[int64]*core.HistoryBucket{}
	s.inRange(userID, rng, func(txn core.Transaction) {
		k := txn.Date.Unix()
		b, ok := days[k]
		if !ok {
			b = &core.HistoryBucket{Year: txn.Date.Year(), Month: core.MonthIndex(txn.Date), Day: txn.Date.Day()}
			days[k] = b
		}
		if txn.Type == core.Income {
			b.Income = b.Income.Add(txn.Amount)
		} else {
			b.Expense = b.Expense.Add(txn.Amount)
		}
	})

	keys := make([]int64, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]core.HistoryBucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, *days[k])
	}
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, rng period.Range) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listTransactions(userID, rng), nil
}

func (s *Store) MonthHistory(_ context.Context, userID string, year int) ([]core.MonthHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.monthHistory(userID, year), nil
}

func (s *Store) YearHistory(_ context.Context, userID string, year int) (core.YearHistory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.st.years[yearKey{userID, year}]
	return h, ok, nil
}

func (s *state) listTransactions(userID string, rng period.Range) []core.Transaction {
	out := []core.Transaction{}
	for _, txn := range s.txns {
		if txn.UserID == userID && rng.Contains(txn.Date) {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (s *state) monthHistory(userID string, year int) []core.MonthHistory {
	out := []core.MonthHistory{}
	for k, h := range s.months {
		if k.userID == userID && k.year == year {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

func (s *Store) HistoryYears(_ context.Context, userID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[int]struct{}{}
	for k := range s.st.months {
		if k.userID == userID {
			seen[k.year] = struct{}{}
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := categoryKey{c.UserID, c.Name, c.Type}
	if _, ok := s.st.categories[k]; ok {
		return &core.DuplicateError{Kind: "category", Key: c.Name}
	}
	s.st.categories[k] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, userID, name string, typ core.TransactionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := categoryKey{userID, name, typ}
	if _, ok := s.st.categories[k]; !ok {
		return fmt.Errorf("category %s/%s: %w", typ, name, core.ErrNotFound)
	}
	delete(s.st.categories, k)
	return nil
}

func (s *Store) ListCategories(_ context.Context, userID string, typ core.TransactionType) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.Category{}
	for k, c := range s.st.categories {
		if k.userID == userID && (typ == "" || k.typ == typ) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (s *Store) GetSettings(_ context.Context, userID string) (core.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	us, ok := s.st.settings[userID]
	if !ok {
		return core.UserSettings{}, fmt.Errorf("settings %s: %w", userID, core.ErrNotFound)
	}
	return us, nil
}

func (s *Store) UpsertSettings(_ context.Context, us core.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.settings[us.UserID] = us
	return nil
}

func (s *Store) UserYears(_ context.Context) ([]ledger.UserYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[ledger.UserYear]struct{}{}
	for _, txn := range s.st.txns {
		seen[ledger.UserYear{UserID: txn.UserID, Year: txn.Date.Year()}] = struct{}{}
	}
	for k := range s.st.months {
		seen[ledger.UserYear{UserID: k.userID, Year: k.year}] = struct{}{}
	}
	for k := range s.st.years {
		seen[ledger.UserYear{UserID: k.userID, Year: k.year}] = struct{}{}
	}
	out := make([]ledger.UserYear, 0, len(seen))
	for uy := range seen {
		out = append(out, uy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Year < out[j].Year
	})
	return out, nil
}
