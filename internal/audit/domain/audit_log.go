package domain

import "time"

// AuditLog represents one recorded authentication event.
type AuditLog struct {
	ID        string
	UserID    string // empty for events with no resolved user (e.g. failed login on unknown identifier)
	Action    string // e.g. login_success, login_failure, register, logout, refresh_success, refresh_failure
	IP        string
	Metadata  string
	CreatedAt time.Time
}
