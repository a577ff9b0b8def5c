package repository

import (
	"context"
	"sync"

	"chat-credential-engine/internal/principal/domain"
)

// MemoryRepository keeps principals in process memory. Used when DATABASE_URL is unset and in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Principal
	byEmail map[string]string
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty principal store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.Principal),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	key := domain.NormalizeEmail(p.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[key]; ok {
		return domain.ErrEmailTaken
	}
	cp := *p
	r.byID[p.ID] = &cp
	r.byEmail[key] = p.ID
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		delete(r.byEmail, domain.NormalizeEmail(p.Email))
		delete(r.byID, id)
	}
	return nil
}
