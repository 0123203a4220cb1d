package repository

import (
	"context"
	"errors"
	"time"

	"user-auth-service/internal/user/domain"
)

// ErrDuplicate is returned by Create when the email or username is already
// taken. The store's unique constraints are the authority; the workflow's
// read-then-check is only a fast path.
var ErrDuplicate = errors.New("email or username already exists")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByIdentifier returns the user whose email or username exactly matches identifier.
	// Uniqueness of both columns is enforced by the store, so at most one row matches.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}
