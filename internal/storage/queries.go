package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/period"
)

func rangeArgs(userID string, rng period.Range) []any {
	return []any{userID, rng.From.Format(dateLayout), rng.To.Format(dateLayout)}
}

func (s *SQLiteStore) CategoryTotals(ctx context.Context, userID string, rng period.Range) ([]core.CategoryStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, category, category_icon, SUM(amount_cents) AS total
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date < ?
		GROUP BY type, category, category_icon
		ORDER BY total DESC, type ASC, category ASC, category_icon ASC`, rangeArgs(userID, rng)...)
	if err != nil {
		return nil, core.Unavailable("query category totals", err)
	}
	defer rows.Close()

	out := []core.CategoryStat{}
	for rows.Next() {
		var (
			st    core.CategoryStat
			typ   string
			total int64
		)
		if err := rows.Scan(&typ, &st.Category, &st.CategoryIcon, &total); err != nil {
			return nil, core.Unavailable("scan category totals", err)
		}
		st.Type = core.TransactionType(typ)
		st.TotalAmount = core.FromCents(total)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("iterate category totals", err)
	}
	return out, nil
}

func (s *SQLiteStore) TypeTotals(ctx context.Context, userID string, rng period.Range) (core.Balance, error) {
	var income, expense int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'income'  THEN amount_cents END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date < ?`, rangeArgs(userID, rng)...).Scan(&income, &expense)
	if err != nil {
		return core.Balance{}, core.Unavailable("query type totals", err)
	}
	return core.Balance{Income: core.FromCents(income), Expense: core.FromCents(expense)}, nil
}

func (s *SQLiteStore) DailyTotals(ctx context.Context, userID string, rng period.Range) ([]core.HistoryBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date,
			COALESCE(SUM(CASE WHEN type = 'income'  THEN amount_cents END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date < ?
		GROUP BY date
		ORDER BY date ASC`, rangeArgs(userID, rng)...)
	if err != nil {
		return nil, core.Unavailable("query daily totals", err)
	}
	defer rows.Close()

	out := []core.HistoryBucket{}
	for rows.Next() {
		var (
			date            string
			income, expense int64
		)
		if err := rows.Scan(&date, &income, &expense); err != nil {
			return nil, core.Unavailable("scan daily totals", err)
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", date, err)
		}
		out = append(out, core.HistoryBucket{
			Year:    d.Year(),
			Month:   core.MonthIndex(d),
			Day:     d.Day(),
			Income:  core.FromCents(income),
			Expense: core.FromCents(expense),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("iterate daily totals", err)
	}
	return out, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, userID string, rng period.Range) ([]core.Transaction, error) {
	return listTransactions(ctx, s.db, userID, rng)
}

func (s *SQLiteStore) MonthHistory(ctx context.Context, userID string, year int) ([]core.MonthHistory, error) {
	return monthHistory(ctx, s.db, userID, year)
}

func (s *SQLiteStore) YearHistory(ctx context.Context, userID string, year int) (core.YearHistory, bool, error) {
	return yearHistory(ctx, s.db, userID, year)
}

func listTransactions(ctx context.Context, q querier, userID string, rng period.Range) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date < ?
		ORDER BY date DESC, created_at DESC, id ASC`, rangeArgs(userID, rng)...)
	if err != nil {
		return nil, core.Unavailable("query transactions", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, core.Unavailable("scan transaction", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("iterate transactions", err)
	}
	return out, nil
}

func monthHistory(ctx context.Context, q querier, userID string, year int) ([]core.MonthHistory, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT month, income_cents, expense_cents
		FROM month_history
		WHERE user_id = ? AND year = ?
		ORDER BY month ASC`, userID, year)
	if err != nil {
		return nil, core.Unavailable("query month history", err)
	}
	defer rows.Close()

	out := []core.MonthHistory{}
	for rows.Next() {
		var (
			month           int
			income, expense int64
		)
		if err := rows.Scan(&month, &income, &expense); err != nil {
			return nil, core.Unavailable("scan month history", err)
		}
		out = append(out, core.MonthHistory{
			UserID:  userID,
			Year:    year,
			Month:   month,
			Income:  core.FromCents(income),
			Expense: core.FromCents(expense),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("iterate month history", err)
	}
	return out, nil
}

func yearHistory(ctx context.Context, q querier, userID string, year int) (core.YearHistory, bool, error) {
	var income, expense int64
	err := q.QueryRowContext(ctx, `
		SELECT income_cents, expense_cents FROM year_history
		WHERE user_id = ? AND year = ?`, userID, year).Scan(&income, &expense)
	if errors.Is(err, sql.ErrNoRows) {
		return core.YearHistory{}, false, nil
	}
	if err != nil {
		return core.YearHistory{}, false, core.Unavailable("query year history", err)
	}
	return core.YearHistory{
		UserID:  userID,
		Year:    year,
		Income:  core.FromCents(income),
		Expense: core.FromCents(expense),
	}, true, nil
}

func (s *SQLiteStore) HistoryYears(ctx context.Context, userID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT year FROM month_history WHERE user_id = ? ORDER BY year ASC`, userID)
	if err != nil {
		return nil, core.Unavailable("query history years", err)
	}
	defer rows.Close()

	years := []int{}
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, core.Unavailable("scan history years", err)
		}
		years = append(years, y)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("iterate history years", err)
	}
	return years, nil
}

func (s *SQLiteStore) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (user_id, name, type, icon, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.UserID, c.Name, string(c.Type), c.Icon, c.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return mapWriteError("insert category", "category", c.Name, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCategory(ctx context.Context, userID, name string, typ core.TransactionType) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM categories WHERE user_id = ? AND name = ? AND type = ?`, userID, name, string(typ))
	if err != nil {
		return core.Unavailable("delete category", err)
	}
	return requireAffected(res, fmt.Sprintf("category %s/%s", typ, name))
}

func (s *SQLiteStore) ListCategories(ctx context.Context, userID string, typ core.TransactionType) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, type, icon, created_at
		FROM categories
		WHERE user_id = ? AND (? = '' OR type = ?)
		ORDER BY name ASC, type ASC`, userID, string(typ), string(typ))
	if err != nil {
		return nil, core.Unavailable("query categories", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, core.Unavailable("scan category", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("iterate categories", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetSettings(ctx context.Context, userID string) (core.UserSettings, error) {
	us := core.UserSettings{UserID: userID}
	err := s.db.QueryRowContext(ctx, `SELECT currency FROM user_settings WHERE user_id = ?`, userID).Scan(&us.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserSettings{}, fmt.Errorf("settings %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return core.UserSettings{}, core.Unavailable("get settings", err)
	}
	return us, nil
}

func (s *SQLiteStore) UpsertSettings(ctx context.Context, us core.UserSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, currency) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET currency = excluded.currency`, us.UserID, us.Currency)
	if err != nil {
		return core.Unavailable("upsert settings", err)
	}
	return nil
}

func (s *SQLiteStore) UserYears(ctx context.Context) ([]ledger.UserYear, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, CAST(substr(date, 1, 4) AS INTEGER) AS year FROM transactions
		UNION
		SELECT user_id, year FROM month_history
		UNION
		SELECT user_id, year FROM year_history
		ORDER BY 1, 2`)
	if err != nil {
		return nil, core.Unavailable("query user years", err)
	}
	defer rows.Close()

	out := []ledger.UserYear{}
	for rows.Next() {
		var uy ledger.UserYear
		if err := rows.Scan(&uy.UserID, &uy.Year); err != nil {
			return nil, core.Unavailable("scan user years", err)
		}
		out = append(out, uy)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("iterate user years", err)
	}
	return out, nil
}
