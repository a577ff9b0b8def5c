package repository

import (
	"context"

	"chat-credential-engine/internal/principal/domain"
)

// Repository defines persistence for principals. Lookups return (nil, nil) when not found.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	// Create inserts p. Returns domain.ErrEmailTaken if the email is already registered.
	Create(ctx context.Context, p *domain.Principal) error
	// Delete removes the principal with id. Deleting a missing principal is not an error.
	Delete(ctx context.Context, id string) error
}
