// Package auth implements the authentication workflow: registration, login,
// logout, and refresh-token rotation over a user store, a session store, and a
// token provider.
package auth

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"user-auth-service/internal/events"
	"user-auth-service/internal/ratelimit"
	"user-auth-service/internal/security"
	sessiondomain "user-auth-service/internal/session/domain"
	userdomain "user-auth-service/internal/user/domain"
	userrepo "user-auth-service/internal/user/repository"
)

// Sentinel errors for the workflow; handlers map them to HTTP status codes.
// Note ErrAccountUnavailable deliberately merges "not found" and "inactive" so
// login responses cannot be used for account enumeration.
var (
	ErrAccountUnavailable   = errors.New("account unavailable")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrDuplicateIdentity    = errors.New("email or username already registered")
	ErrRegistrationRejected = errors.New("registration rejected")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
	ErrTooManyAttempts      = errors.New("too many failed login attempts")
	ErrOperationFailed      = errors.New("operation failed")
)

// Result holds the outcome of Login, Register, or Refresh. It is transient and
// never persisted. On failure Err is one of the sentinel errors above and
// Message carries detail safe to show the caller.
type Result struct {
	Success      bool
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *userdomain.User
	Err          error
	Message      string
}

// Registration carries the profile fields supplied at sign-up.
type Registration struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	UserType  userdomain.UserType
}

// ClientInfo identifies the caller of a login. IPAddress must be the real
// remote address resolved by the transport layer, never a placeholder.
type ClientInfo struct {
	IPAddress  string
	DeviceInfo string
}

// UserRepo is the minimal user repository needed by the workflow.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionRepo is the minimal session repository needed by the workflow.
type SessionRepo interface {
	GetByRefreshTokenHash(ctx context.Context, hash string) (*sessiondomain.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	DeactivateAllByUser(ctx context.Context, userID string) error
	UpdateTokens(ctx context.Context, id, accessTokenID, refreshTokenHash string, expiresAt time.Time) error
}

// AuditLogger records authentication outcomes. Best-effort; implementations
// must not return errors to the workflow.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, ip, metadata string)
}

// LoginLimiter throttles failed login attempts per identifier and IP.
type LoginLimiter interface {
	CheckLogin(ctx context.Context, identifier, ip string) error
	RecordFailure(ctx context.Context, identifier, ip string) error
	Reset(ctx context.Context, identifier, ip string) error
}

// Service implements the credential-based authentication workflow.
// limiter, auditor, and producer may be nil; the corresponding concern is then disabled.
type Service struct {
	users       UserRepo
	sessions    SessionRepo
	hasher      *security.Hasher
	tokens      *security.TokenProvider
	sessionTTL  time.Duration
	rememberTTL time.Duration
	limiter     LoginLimiter
	auditor     AuditLogger
	producer    events.Producer
}

// NewService returns a Service with the given dependencies.
// sessionTTL applies to ordinary logins, rememberTTL to remember-me logins and refreshes.
func NewService(
	users UserRepo,
	sessions SessionRepo,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	sessionTTL, rememberTTL time.Duration,
	limiter LoginLimiter,
	auditor AuditLogger,
	producer events.Producer,
) *Service {
	return &Service{
		users:       users,
		sessions:    sessions,
		hasher:      hasher,
		tokens:      tokens,
		sessionTTL:  sessionTTL,
		rememberTTL: rememberTTL,
		limiter:     limiter,
		auditor:     auditor,
		producer:    producer,
	}
}

// Login authenticates by email-or-username and password, creates an active
// session, and returns a token pair. Session expiry is now+rememberTTL when
// rememberMe is set, now+sessionTTL otherwise. A missing and an inactive
// account produce the same failure, and in both cases password verification
// never runs.
func (s *Service) Login(ctx context.Context, identifier, password string, rememberMe bool, client ClientInfo) *Result {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return s.fail(ctx, "", "login_failure", client.IPAddress, ErrInvalidCredentials, "")
	}

	if s.limiter != nil {
		if err := s.limiter.CheckLogin(ctx, identifier, client.IPAddress); err != nil {
			if errors.Is(err, ratelimit.ErrRateLimited) {
				return s.fail(ctx, "", "login_failure", client.IPAddress, ErrTooManyAttempts, "")
			}
			// Limiter backend down: fail open, the store remains the authority.
			log.Printf("auth: login limiter unavailable: %v", err)
		}
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		return s.opFailed(ctx, "login", client.IPAddress, err)
	}
	if user == nil || !user.IsActive {
		s.recordFailure(ctx, identifier, client.IPAddress)
		return s.fail(ctx, "", "login_failure", client.IPAddress, ErrAccountUnavailable, "")
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.recordFailure(ctx, identifier, client.IPAddress)
		return s.fail(ctx, user.ID, "login_failure", client.IPAddress, ErrInvalidCredentials, "")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.sessionTTL)
	if rememberMe {
		expiresAt = now.Add(s.rememberTTL)
	}

	accessToken, jti, _, err := s.tokens.IssueAccess(user.ID, user.Username, string(user.UserType))
	if err != nil {
		return s.opFailed(ctx, "login", client.IPAddress, err)
	}
	refreshToken, err := s.tokens.IssueRefresh()
	if err != nil {
		return s.opFailed(ctx, "login", client.IPAddress, err)
	}

	sess := &sessiondomain.Session{
		ID:               uuid.New().String(),
		UserID:           user.ID,
		AccessTokenID:    jti,
		RefreshTokenHash: security.HashRefreshToken(refreshToken),
		DeviceInfo:       client.DeviceInfo,
		IPAddress:        client.IPAddress,
		ExpiresAt:        expiresAt,
		IsActive:         true,
		CreatedAt:        now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return s.opFailed(ctx, "login", client.IPAddress, err)
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return s.opFailed(ctx, "login", client.IPAddress, err)
	}
	user.LastLoginAt = &now

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, identifier, client.IPAddress); err != nil {
			log.Printf("auth: limiter reset failed: %v", err)
		}
	}
	s.record(ctx, user.ID, "login_success", client.IPAddress, "")
	s.emit(user.ID, "login_success", client)

	return &Result{
		Success:      true,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         user,
	}
}

// Register creates a user with the supplied profile fields, IsActive=true, and
// a hashed password. No tokens are issued; the caller must log in separately.
// Duplicate email or username fails with ErrDuplicateIdentity; policy
// violations fail with ErrRegistrationRejected carrying the joined messages.
func (s *Service) Register(ctx context.Context, reg Registration) *Result {
	reg.Email = strings.TrimSpace(strings.ToLower(reg.Email))
	reg.Username = strings.TrimSpace(reg.Username)

	if msgs := validateRegistration(reg); len(msgs) > 0 {
		return s.fail(ctx, "", "register_failure", "", ErrRegistrationRejected, strings.Join(msgs, "; "))
	}

	for _, identifier := range []string{reg.Email, reg.Username} {
		existing, err := s.users.GetByIdentifier(ctx, identifier)
		if err != nil {
			return s.opFailed(ctx, "register", "", err)
		}
		if existing != nil {
			return s.fail(ctx, "", "register_failure", "", ErrDuplicateIdentity, "")
		}
	}

	hashed, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return s.opFailed(ctx, "register", "", err)
	}

	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hashed,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		UserType:     reg.UserType,
		IsActive:     true,
		CreatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return s.fail(ctx, "", "register_failure", "", ErrRegistrationRejected, err.Error())
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrDuplicate) {
			return s.fail(ctx, "", "register_failure", "", ErrDuplicateIdentity, "")
		}
		return s.opFailed(ctx, "register", "", err)
	}

	s.record(ctx, user.ID, "register", "", "")
	s.emit(user.ID, "register", ClientInfo{})

	return &Result{Success: true, User: user}
}

// Logout deactivates every active session for userID. Idempotent: a user with
// no active sessions is a no-op success. Returns false only on persistence failure.
func (s *Service) Logout(ctx context.Context, userID string) bool {
	if err := s.sessions.DeactivateAllByUser(ctx, userID); err != nil {
		log.Printf("auth: logout failed for user %s: %v", userID, err)
		return false
	}
	s.record(ctx, userID, "logout", "", "")
	s.emit(userID, "logout", ClientInfo{})
	return true
}

// Refresh redeems a refresh token for a new token pair, rotating both tokens
// in place and extending the session to now+rememberTTL. The presented token
// becomes unusable once the rotation write lands (single use). There is no
// compare-and-swap: concurrent redemptions of the same token may both succeed
// before either write; the unique hash index is the only backstop.
func (s *Service) Refresh(ctx context.Context, refreshToken string) *Result {
	if refreshToken == "" {
		return s.fail(ctx, "", "refresh_failure", "", ErrInvalidRefreshToken, "")
	}

	sess, err := s.sessions.GetByRefreshTokenHash(ctx, security.HashRefreshToken(refreshToken))
	if err != nil {
		return s.opFailed(ctx, "refresh", "", err)
	}
	now := time.Now().UTC()
	if sess == nil || !sess.IsActive || sess.Expired(now) {
		return s.fail(ctx, "", "refresh_failure", "", ErrInvalidRefreshToken, "")
	}
	if !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return s.fail(ctx, sess.UserID, "refresh_failure", "", ErrInvalidRefreshToken, "")
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return s.opFailed(ctx, "refresh", "", err)
	}
	if user == nil || !user.IsActive {
		return s.fail(ctx, sess.UserID, "refresh_failure", "", ErrInvalidRefreshToken, "")
	}

	accessToken, jti, _, err := s.tokens.IssueAccess(user.ID, user.Username, string(user.UserType))
	if err != nil {
		return s.opFailed(ctx, "refresh", "", err)
	}
	newRefresh, err := s.tokens.IssueRefresh()
	if err != nil {
		return s.opFailed(ctx, "refresh", "", err)
	}

	expiresAt := now.Add(s.rememberTTL)
	if err := s.sessions.UpdateTokens(ctx, sess.ID, jti, security.HashRefreshToken(newRefresh), expiresAt); err != nil {
		return s.opFailed(ctx, "refresh", "", err)
	}

	s.record(ctx, user.ID, "refresh_success", sess.IPAddress, "")
	s.emit(user.ID, "refresh_success", ClientInfo{IPAddress: sess.IPAddress, DeviceInfo: sess.DeviceInfo})

	return &Result{
		Success:      true,
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    expiresAt,
		User:         user,
	}
}

// ValidateUser runs Login's lookup/active/password checks with no side effects.
func (s *Service) ValidateUser(ctx context.Context, identifier, password string) bool {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return false
	}
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil || user == nil || !user.IsActive {
		return false
	}
	return s.hasher.Compare(user.PasswordHash, password) == nil
}

// GetUserByIdentifier returns the user matching the email or username, or nil.
func (s *Service) GetUserByIdentifier(ctx context.Context, identifier string) (*userdomain.User, error) {
	return s.users.GetByIdentifier(ctx, strings.TrimSpace(identifier))
}

// GetUserByID returns the user for id, or nil.
func (s *Service) GetUserByID(ctx context.Context, id string) (*userdomain.User, error) {
	return s.users.GetByID(ctx, id)
}

// IsUserActive reports whether the user exists and is active.
func (s *Service) IsUserActive(ctx context.Context, userID string) bool {
	user, err := s.users.GetByID(ctx, userID)
	return err == nil && user != nil && user.IsActive
}

// ActiveSessions lists the user's sessions with IsActive=true.
func (s *Service) ActiveSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListActiveByUser(ctx, userID)
}

// fail builds a failed Result, recording the outcome to the audit trail.
func (s *Service) fail(ctx context.Context, userID, action, ip string, sentinel error, detail string) *Result {
	s.record(ctx, userID, action, ip, detail)
	msg := sentinel.Error()
	if detail != "" {
		msg = detail
	}
	return &Result{Err: sentinel, Message: msg}
}

// opFailed converts an unexpected store/issuer fault into a failed Result so
// no infrastructure error escapes the workflow boundary.
func (s *Service) opFailed(ctx context.Context, action, ip string, err error) *Result {
	log.Printf("auth: %s: %v", action, err)
	s.record(ctx, "", action+"_error", ip, err.Error())
	return &Result{Err: ErrOperationFailed, Message: ErrOperationFailed.Error()}
}

func (s *Service) record(ctx context.Context, userID, action, ip, metadata string) {
	if s.auditor != nil {
		s.auditor.LogEvent(ctx, userID, action, ip, metadata)
	}
}

func (s *Service) emit(userID, action string, client ClientInfo) {
	if s.producer == nil {
		return
	}
	events.EmitAsync(s.producer, &events.AuthEvent{
		UserID:     userID,
		Action:     action,
		IP:         client.IPAddress,
		Device:     client.DeviceInfo,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *Service) recordFailure(ctx context.Context, identifier, ip string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordFailure(ctx, identifier, ip); err != nil && !errors.Is(err, ratelimit.ErrRateLimited) {
		log.Printf("auth: limiter record failed: %v", err)
	}
}
