package cache

import (
	"context"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

// SettingsStore caches GetSettings per user in front of another SettingsStore.
// Writes go through and refresh the entry.
type SettingsStore struct {
	next  ledger.SettingsStore
	cache *LRUCache[core.UserSettings]
}

var _ ledger.SettingsStore = (*SettingsStore)(nil)

func NewSettingsStore(next ledger.SettingsStore, maxSize int, ttl time.Duration) *SettingsStore {
	return &SettingsStore{next: next, cache: NewLRUCache[core.UserSettings](maxSize, ttl)}
}

// Cache exposes the underlying LRU so a Manager can clean it.
func (s *SettingsStore) Cache() *LRUCache[core.UserSettings] { return s.cache }

func (s *SettingsStore) GetSettings(ctx context.Context, userID string) (core.UserSettings, error) {
	if us, ok := s.cache.Get(userID); ok {
		return us, nil
	}
	us, err := s.next.GetSettings(ctx, userID)
	if err != nil {
		return core.UserSettings{}, err
	}
	s.cache.Set(userID, us)
	return us, nil
}

func (s *SettingsStore) UpsertSettings(ctx context.Context, us core.UserSettings) error {
	if err := s.next.UpsertSettings(ctx, us); err != nil {
		s.cache.Delete(us.UserID)
		return err
	}
	s.cache.Set(us.UserID, us)
	return nil
}
