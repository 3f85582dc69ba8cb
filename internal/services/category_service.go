package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// CategoryService manages the per-user category list.
type CategoryService struct {
	store ledger.CategoryStore
	now   func() time.Time
}

func NewCategoryService(store ledger.CategoryStore) *CategoryService {
	return &CategoryService{store: store, now: time.Now}
}

func (s *CategoryService) CreateCategory(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	if userID == "" {
		return core.Category{}, core.ErrNotAuthenticated
	}
	c.UserID = userID
	c.Name = strings.TrimSpace(c.Name)
	c.Icon = strings.TrimSpace(c.Icon)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.CreatedAt = s.now().UTC()

	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category created", applog.FieldUserID, userID, "name", c.Name, "type", c.Type)
	return c, nil
}

// DeleteCategory removes the category. Transactions that reference it keep
// their category name and icon.
func (s *CategoryService) DeleteCategory(ctx context.Context, userID, name string, typ core.TransactionType) error {
	if userID == "" {
		return core.ErrNotAuthenticated
	}
	if !typ.Valid() {
		return core.NewValidationError("type", "must be income or expense")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.NewValidationError("name", "is required")
	}
	if err := s.store.DeleteCategory(ctx, userID, name, typ); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	slog.InfoContext(ctx, "Category deleted", applog.FieldUserID, userID, "name", name, "type", typ)
	return nil
}

// ListCategories returns the user's categories ordered by name. An empty typ
// lists both kinds.
func (s *CategoryService) ListCategories(ctx context.Context, userID string, typ core.TransactionType) ([]core.Category, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	if typ != "" && !typ.Valid() {
		return nil, core.NewValidationError("type", "must be income or expense")
	}
	cats, err := s.store.ListCategories(ctx, userID, typ)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}
