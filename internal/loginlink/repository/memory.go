package repository

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-credential-engine/internal/loginlink/domain"
)

type memoryEntry struct {
	link     domain.Link
	deadline time.Time
}

// MemoryRepository is an in-process Repository. Fetch and delete happen under one lock.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowF    func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty in-memory link store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]memoryEntry),
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. For tests.
func (r *MemoryRepository) SetClock(nowF func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowF = nowF
}

// Put stores link until now+ttl.
func (r *MemoryRepository) Put(ctx context.Context, link *domain.Link, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[link.Token] = memoryEntry{link: *link, deadline: r.nowF().Add(ttl)}
	return nil
}

// GetAndDelete removes and returns the link for token if its ttl has not passed.
func (r *MemoryRepository) GetAndDelete(ctx context.Context, token string) (*domain.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[token]
	if !ok {
		return nil, nil
	}
	delete(r.entries, token)
	if !r.nowF().Before(e.deadline) {
		return nil, nil
	}
	link := e.link
	return &link, nil
}

// Cleanup drops entries whose ttl passed at or before now and returns how many were removed.
func (r *MemoryRepository) Cleanup(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for token, e := range r.entries {
		if !now.Before(e.deadline) {
			delete(r.entries, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored links, including expired ones not yet cleaned up.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
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
			r.mu.Lock()
			now := r.nowF()
			r.mu.Unlock()
			if n := r.Cleanup(now); n > 0 {
				logger.Debug("login link sweep", zap.Int("removed", n))
			}
		}
	}
}
