package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"user-auth-service/internal/session/domain"
)

const sessionColumns = `id, user_id, access_token_id, refresh_token_hash, device_info, ip_address, expires_at, is_active, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByRefreshTokenHash returns the session for the refresh token hash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, hash)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListActiveByUser returns all sessions for the user with is_active true.
// Expiry is not filtered here; callers check it at read time.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.AccessTokenID, s.RefreshTokenHash,
		nullString(s.DeviceInfo), nullString(s.IPAddress),
		s.ExpiresAt, s.IsActive, s.CreatedAt,
	)
	return err
}

// Deactivate marks the session with the given id as inactive.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE id = $1`, id)
	return err
}

// DeactivateAllByUser marks all of the user's sessions inactive. A user with no
// active sessions is a no-op success.
func (r *PostgresRepository) DeactivateAllByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	return err
}

// UpdateTokens overwrites the session's access token id, refresh token hash, and
// expiry in a single statement. After this write the previous refresh token can
// no longer match any row.
func (r *PostgresRepository) UpdateTokens(ctx context.Context, id, accessTokenID, refreshTokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET access_token_id = $2, refresh_token_hash = $3, expires_at = $4
		 WHERE id = $1`,
		id, accessTokenID, refreshTokenHash, expiresAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s          domain.Session
		deviceInfo sql.NullString
		ipAddress  sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &s.AccessTokenID, &s.RefreshTokenHash,
		&deviceInfo, &ipAddress, &s.ExpiresAt, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.DeviceInfo = deviceInfo.String
	s.IPAddress = ipAddress.String
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
