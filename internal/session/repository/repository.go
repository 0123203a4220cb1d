package repository

import (
	"context"
	"time"

	"user-auth-service/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	// GetByRefreshTokenHash returns the session whose current refresh token hash
	// matches exactly, or nil. A unique index guarantees at most one row.
	GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Deactivate(ctx context.Context, id string) error
	DeactivateAllByUser(ctx context.Context, userID string) error
	// UpdateTokens overwrites the session's token fields and expiry in one write (refresh rotation).
	UpdateTokens(ctx context.Context, id, accessTokenID, refreshTokenHash string, expiresAt time.Time) error
}
