// Package audit records authentication events (logins, logouts, refreshes) for review.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"user-auth-service/internal/audit/domain"
	auditrepo "user-auth-service/internal/audit/repository"
)

// Logger writes a single audit event per authentication outcome. Used by the
// auth workflow; LogEvent is best-effort — failures are logged and do not
// affect the caller.
type Logger struct {
	repo auditrepo.Repository
}

// NewLogger returns a Logger that persists to repo.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
// ip may be empty when the caller has no network context (e.g. internal jobs).
func (l *Logger) LogEvent(ctx context.Context, userID, action, ip, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s: %v", action, err)
	}
}
