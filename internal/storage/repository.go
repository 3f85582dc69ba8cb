// Package storage is the SQLite ledger store. Amounts are persisted as integer
// cents and rollup rows are maintained with ON CONFLICT increments.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/period"
)

const (
	dateLayout = "2006-01-02"
	// Fixed width so created_at sorts correctly as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var _ ledger.Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// DSN builds the modernc connection string with the pragmas every connection needs.
// Transactions begin IMMEDIATE so reads inside InTx hold the write lock
// across processes sharing the file.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite ledger store ready", "path", dbPath)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return core.Unavailable("ping database", err)
	}
	return nil
}

// InTx runs fn inside a database transaction and commits only if fn succeeds.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Unavailable("begin transaction", err)
	}
	if err := fn(&sqliteTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Failed to rollback transaction", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return core.Unavailable("commit transaction", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, txn core.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount_cents, description, date, type, category, category_icon, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.UserID, core.ToCents(txn.Amount), txn.Description, txn.Date.Format(dateLayout),
		string(txn.Type), txn.Category, txn.CategoryIcon,
		txn.CreatedAt.UTC().Format(timeLayout), txn.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return mapWriteError("insert transaction", "transaction", txn.ID, err)
	}
	return nil
}

func (t *sqliteTx) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, core.Unavailable("get transaction", err)
	}
	return txn, nil
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, txn core.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions
		SET amount_cents = ?, description = ?, date = ?, type = ?, category = ?, category_icon = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		core.ToCents(txn.Amount), txn.Description, txn.Date.Format(dateLayout), string(txn.Type),
		txn.Category, txn.CategoryIcon, txn.UpdatedAt.UTC().Format(timeLayout), txn.ID, txn.UserID)
	if err != nil {
		return core.Unavailable("update transaction", err)
	}
	return requireAffected(res, "transaction "+txn.ID)
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return core.Unavailable("delete transaction", err)
	}
	return requireAffected(res, "transaction "+id)
}

func (t *sqliteTx) AddMonthHistory(ctx context.Context, userID string, year, month int, income, expense decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO month_history (user_id, year, month, income_cents, expense_cents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, year, month) DO UPDATE SET
			income_cents  = income_cents  + excluded.income_cents,
			expense_cents = expense_cents + excluded.expense_cents`,
		userID, year, month, core.ToCents(income), core.ToCents(expense))
	if err != nil {
		return core.Unavailable("upsert month history", err)
	}
	return nil
}

func (t *sqliteTx) AddYearHistory(ctx context.Context, userID string, year int, income, expense decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO year_history (user_id, year, income_cents, expense_cents)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, year) DO UPDATE SET
			income_cents  = income_cents  + excluded.income_cents,
			expense_cents = expense_cents + excluded.expense_cents`,
		userID, year, core.ToCents(income), core.ToCents(expense))
	if err != nil {
		return core.Unavailable("upsert year history", err)
	}
	return nil
}

func (t *sqliteTx) SetMonthHistory(ctx context.Context, h core.MonthHistory) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO month_history (user_id, year, month, income_cents, expense_cents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, year, month) DO UPDATE SET
			income_cents  = excluded.income_cents,
			expense_cents = excluded.expense_cents`,
		h.UserID, h.Year, h.Month, core.ToCents(h.Income), core.ToCents(h.Expense))
	if err != nil {
		return core.Unavailable("set month history", err)
	}
	return nil
}

func (t *sqliteTx) SetYearHistory(ctx context.Context, h core.YearHistory) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO year_history (user_id, year, income_cents, expense_cents)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, year) DO UPDATE SET
			income_cents  = excluded.income_cents,
			expense_cents = excluded.expense_cents`,
		h.UserID, h.Year, core.ToCents(h.Income), core.ToCents(h.Expense))
	if err != nil {
		return core.Unavailable("set year history", err)
	}
	return nil
}

func (t *sqliteTx) ListTransactions(ctx context.Context, userID string, rng period.Range) ([]core.Transaction, error) {
	return listTransactions(ctx, t.tx, userID, rng)
}

func (t *sqliteTx) MonthHistory(ctx context.Context, userID string, year int) ([]core.MonthHistory, error) {
	return monthHistory(ctx, t.tx, userID, year)
}

func (t *sqliteTx) YearHistory(ctx context.Context, userID string, year int) (core.YearHistory, bool, error) {
	return yearHistory(ctx, t.tx, userID, year)
}

func (t *sqliteTx) GetCategory(ctx context.Context, userID, name string, typ core.TransactionType) (core.Category, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT user_id, name, type, icon, created_at
		FROM categories WHERE user_id = ? AND name = ? AND type = ?`, userID, name, string(typ))
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s/%s: %w", typ, name, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, core.Unavailable("get category", err)
	}
	return c, nil
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return core.Unavailable("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return nil
}

// mapWriteError turns uniqueness violations into *core.DuplicateError.
func mapWriteError(op, kind, key string, err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return &core.DuplicateError{Kind: kind, Key: key}
		}
	}
	return core.Unavailable(op, err)
}

type scanner interface {
	Scan(dest ...any) error
}

const transactionColumns = `id, user_id, amount_cents, description, date, type, category, category_icon, created_at, updated_at`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		txn                         core.Transaction
		cents                       int64
		date, typ, created, updated string
	)
	if err := row.Scan(&txn.ID, &txn.UserID, &cents, &txn.Description, &date, &typ,
		&txn.Category, &txn.CategoryIcon, &created, &updated); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if txn.Date, err = time.Parse(dateLayout, date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	if txn.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return core.Transaction{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if txn.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return core.Transaction{}, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	txn.Amount = core.FromCents(cents)
	txn.Type = core.TransactionType(typ)
	return txn, nil
}

func scanCategory(row scanner) (core.Category, error) {
	var (
		c            core.Category
		typ, created string
	)
	if err := row.Scan(&c.UserID, &c.Name, &typ, &c.Icon, &created); err != nil {
		return core.Category{}, err
	}
	ts, err := time.Parse(timeLayout, created)
	if err != nil {
		return core.Category{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	c.Type = core.TransactionType(typ)
	c.CreatedAt = ts
	return c, nil
}
