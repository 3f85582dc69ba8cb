package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/currency"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// SettingsService reads and updates per-user display preferences.
type SettingsService struct {
	store           ledger.SettingsStore
	defaultCurrency string
}

// NewSettingsService falls back to currency.Default when defaultCurrency is empty.
func NewSettingsService(store ledger.SettingsStore, defaultCurrency string) *SettingsService {
	if defaultCurrency == "" {
		defaultCurrency = currency.Default
	}
	return &SettingsService{store: store, defaultCurrency: defaultCurrency}
}

// GetSettings returns the user's settings, creating the default row on first read.
func (s *SettingsService) GetSettings(ctx context.Context, userID string) (core.UserSettings, error) {
	if userID == "" {
		return core.UserSettings{}, core.ErrNotAuthenticated
	}
	us, err := s.store.GetSettings(ctx, userID)
	if err == nil {
		return us, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.UserSettings{}, fmt.Errorf("get settings: %w", err)
	}

	us = core.UserSettings{UserID: userID, Currency: s.defaultCurrency}
	if err := s.store.UpsertSettings(ctx, us); err != nil {
		return core.UserSettings{}, fmt.Errorf("create default settings: %w", err)
	}
	slog.InfoContext(ctx, "Default settings created", applog.FieldUserID, userID, "currency", us.Currency)
	return us, nil
}

// UpdateCurrency sets the display currency. Setting the current value again is a no-op.
func (s *SettingsService) UpdateCurrency(ctx context.Context, userID, code string) (core.UserSettings, error) {
	if userID == "" {
		return core.UserSettings{}, core.ErrNotAuthenticated
	}
	cur, err := currency.Lookup(code)
	if err != nil {
		return core.UserSettings{}, err
	}
	us := core.UserSettings{UserID: userID, Currency: cur.Code}
	if err := s.store.UpsertSettings(ctx, us); err != nil {
		return core.UserSettings{}, fmt.Errorf("update currency: %w", err)
	}
	slog.InfoContext(ctx, "Currency updated", applog.FieldUserID, userID, "currency", cur.Code)
	return us, nil
}

// Formatter returns the amount formatter for the user's currency.
func (s *SettingsService) Formatter(ctx context.Context, userID string) (*currency.Formatter, error) {
	us, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	f, err := currency.NewFormatter(us.Currency)
	if err != nil {
		slog.WarnContext(ctx, "Stored currency no longer supported, using default",
			applog.FieldUserID, userID, "currency", us.Currency)
		return currency.NewFormatter(s.defaultCurrency)
	}
	return f, nil
}
