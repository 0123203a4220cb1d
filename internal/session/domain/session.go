package domain

import "time"

// Session tracks one issued token pair's validity window. Sessions are never
// deleted; logout and refresh rotation flip IsActive or overwrite token fields.
// A session past ExpiresAt is treated as expired at read time; no background
// sweep deactivates rows eagerly.
type Session struct {
	ID               string
	UserID           string
	AccessTokenID    string // jti of the currently issued access token
	RefreshTokenHash string // SHA-256 hash of the current refresh token; the raw token is never stored
	DeviceInfo       string
	IPAddress        string
	ExpiresAt        time.Time
	IsActive         bool
	CreatedAt        time.Time
}

// Expired reports whether the session's validity window has passed at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
