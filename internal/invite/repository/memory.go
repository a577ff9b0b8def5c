package repository

import (
	"context"
	"sync"
	"time"

	"chat-credential-engine/internal/invite/domain"
)

// MemoryRepository keeps invites in process memory. Each conditional update runs under one lock.
type MemoryRepository struct {
	mu      sync.Mutex
	invites map[string]*domain.Invite
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty invite store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{invites: make(map[string]*domain.Invite)}
}

func (r *MemoryRepository) Create(ctx context.Context, inv *domain.Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invites[inv.Token]; ok {
		return domain.ErrDuplicateToken
	}
	r.invites[inv.Token] = cloneInvite(inv)
	return nil
}

func (r *MemoryRepository) GetByToken(ctx context.Context, token string) (*domain.Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[token]
	if !ok {
		return nil, nil
	}
	return cloneInvite(inv), nil
}

func (r *MemoryRepository) MarkUsed(ctx context.Context, token, userID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[token]
	if !ok || inv.Used || !inv.ExpiresAt.After(now) {
		return 0, nil
	}
	by, at := userID, now
	inv.Used, inv.UsedBy, inv.UsedAt = true, &by, &at
	return 1, nil
}

func (r *MemoryRepository) ResetUsed(ctx context.Context, token, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[token]
	if !ok || !inv.Used || inv.UsedBy == nil || *inv.UsedBy != userID {
		return 0, nil
	}
	inv.Used, inv.UsedBy, inv.UsedAt = false, nil, nil
	return 1, nil
}

// Put replaces the stored record for inv.Token as-is. For tests that simulate a corrupted record.
func (r *MemoryRepository) Put(inv *domain.Invite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invites[inv.Token] = cloneInvite(inv)
}

func cloneInvite(inv *domain.Invite) *domain.Invite {
	cp := *inv
	if inv.UsedBy != nil {
		by := *inv.UsedBy
		cp.UsedBy = &by
	}
	if inv.UsedAt != nil {
		at := *inv.UsedAt
		cp.UsedAt = &at
	}
	return &cp
}
