package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// AuditPublisher requests an asynchronous rollup audit for one user-year.
type AuditPublisher interface {
	PublishRollupAudit(ctx context.Context, userID string, year int) error
}

// LedgerService mutates transactions and keeps the rollups consistent in the
// same store transaction.
type LedgerService struct {
	store     ledger.Store
	rollup    RollupMaintainer
	publisher AuditPublisher
	now       func() time.Time
}

// NewLedgerService wires the service. publisher may be nil.
func NewLedgerService(store ledger.Store, publisher AuditPublisher) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

func normaliseInput(in core.TransactionInput) core.TransactionInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	if !in.Date.IsZero() {
		in.Date = core.TruncateDay(in.Date)
	}
	return in
}

// CreateTransaction validates in, copies the icon of the referenced category and
// inserts the transaction together with its rollup delta.
func (s *LedgerService) CreateTransaction(ctx context.Context, userID string, in core.TransactionInput) (core.Transaction, error) {
	if userID == "" {
		return core.Transaction{}, core.ErrNotAuthenticated
	}
	in = normaliseInput(in)
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}

	now := s.now().UTC()
	txn := core.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      in.Amount,
		Description: in.Description,
		Date:        in.Date,
		Type:        in.Type,
		Category:    in.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		cat, err := tx.GetCategory(ctx, userID, txn.Category, txn.Type)
		if errors.Is(err, core.ErrNotFound) {
			return core.NewValidationError("category", "does not exist")
		}
		if err != nil {
			return err
		}
		txn.CategoryIcon = cat.Icon

		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		return s.rollup.Add(ctx, tx, txn)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		applog.FieldUserID, userID,
		"id", txn.ID,
		"type", txn.Type,
		"amount", txn.Amount.StringFixed(2),
		"date", txn.Date.Format("2006-01-02"))

	s.requestAudit(ctx, userID, txn.Date.Year())
	return txn, nil
}

// UpdateTransaction replaces the editable fields of id and moves its contribution
// from the old rollups to the new ones.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, id string, in core.TransactionInput) (core.Transaction, error) {
	if userID == "" {
		return core.Transaction{}, core.ErrNotAuthenticated
	}
	in = normaliseInput(in)
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}

	var old, updated core.Transaction
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		old, err = tx.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}

		updated = old
		updated.Amount = in.Amount
		updated.Description = in.Description
		updated.Date = in.Date
		updated.Type = in.Type
		updated.Category = in.Category
		updated.UpdatedAt = s.now().UTC()

		cat, err := tx.GetCategory(ctx, userID, in.Category, in.Type)
		switch {
		case err == nil:
			updated.CategoryIcon = cat.Icon
		case errors.Is(err, core.ErrNotFound):
			// A deleted category stays usable on transactions that already carry it.
			if in.Category != old.Category || in.Type != old.Type {
				return core.NewValidationError("category", "does not exist")
			}
		default:
			return err
		}

		if err := tx.UpdateTransaction(ctx, updated); err != nil {
			return err
		}
		if err := s.rollup.Remove(ctx, tx, old); err != nil {
			return err
		}
		return s.rollup.Add(ctx, tx, updated)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated", applog.FieldUserID, userID, "id", id)

	s.requestAudit(ctx, userID, old.Date.Year())
	if updated.Date.Year() != old.Date.Year() {
		s.requestAudit(ctx, userID, updated.Date.Year())
	}
	return updated, nil
}

// DeleteTransaction removes id and its contribution to the rollups.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id string) error {
	if userID == "" {
		return core.ErrNotAuthenticated
	}

	var old core.Transaction
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		old, err = tx.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, userID, id); err != nil {
			return err
		}
		return s.rollup.Remove(ctx, tx, old)
	})
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", applog.FieldUserID, userID, "id", id)

	s.requestAudit(ctx, userID, old.Date.Year())
	return nil
}

func (s *LedgerService) requestAudit(ctx context.Context, userID string, year int) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRollupAudit(ctx, userID, year); err != nil {
		// The mutation is committed; the periodic audit covers a lost request.
		slog.ErrorContext(ctx, "Failed to publish rollup audit request",
			applog.FieldUserID, userID, applog.FieldYear, year, applog.FieldError, err)
	}
}
