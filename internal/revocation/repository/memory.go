package repository

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-credential-engine/internal/revocation/domain"
)

// MemoryRepository is an in-process Repository. Entries past their expiry are ignored by
// lookups and removed by Cleanup; Run calls Cleanup periodically.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.Entry
	nowF    func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty in-memory revocation store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]domain.Entry),
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. For tests.
func (r *MemoryRepository) SetClock(nowF func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowF = nowF
}

// Blacklist records tokenID until expiresAt.
func (r *MemoryRepository) Blacklist(ctx context.Context, tokenID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowF()
	if !expiresAt.After(now) {
		return domain.ErrAlreadyExpired
	}
	if e, ok := r.entries[tokenID]; ok && !e.Expired(now) {
		return domain.ErrAlreadyRevoked
	}
	r.entries[tokenID] = domain.Entry{TokenID: tokenID, ExpiresAt: expiresAt}
	return nil
}

// IsBlacklisted reports whether tokenID has an unexpired entry.
func (r *MemoryRepository) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tokenID]
	return ok && !e.Expired(r.nowF()), nil
}

// Cleanup removes entries whose expiry is at or before now and returns how many were removed.
func (r *MemoryRepository) Cleanup(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.entries {
		if e.Expired(now) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet cleaned up.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Run calls Cleanup every interval until ctx is done.
func (r *MemoryRepository) Run(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.RLock()
			now := r.nowF()
			r.mu.RUnlock()
			if n := r.Cleanup(now); n > 0 {
				logger.Debug("revocation sweep", zap.Int("removed", n))
			}
		}
	}
}
