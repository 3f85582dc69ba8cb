package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/ledgertest"
	"bilancio/internal/storage"
)

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	return store
}

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return newStore(t) })
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s1, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.UpsertSettings(context.Background(), core.UserSettings{UserID: "u1", Currency: "GBP"}))
	require.NoError(t, s1.Close())

	s2, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()
	us, err := s2.GetSettings(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "GBP", us.Currency)
}

func TestPingAfterClose(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Close())
	err := store.Ping(context.Background())
	require.ErrorIs(t, err, core.ErrStoreUnavailable)
}
