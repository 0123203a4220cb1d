package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"user-auth-service/internal/ratelimit"
	"user-auth-service/internal/security"
	sessiondomain "user-auth-service/internal/session/domain"
	userdomain "user-auth-service/internal/user/domain"
	userrepo "user-auth-service/internal/user/repository"
)

type memUserRepo struct {
	mu      sync.Mutex
	users   map[string]*userdomain.User
	creates int
	failErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*userdomain.User)}
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memUserRepo) GetByIdentifier(_ context.Context, identifier string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	for _, u := range r.users {
		if u.Email == identifier || u.Username == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(_ context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	for _, existing := range r.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return userrepo.ErrDuplicate
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	r.creates++
	return nil
}

func (r *memUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		t := at
		u.LastLoginAt = &t
	}
	return nil
}

func (r *memUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*sessiondomain.Session
	failErr  error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*sessiondomain.Session)}
}

func (r *memSessionRepo) GetByRefreshTokenHash(_ context.Context, hash string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	for _, s := range r.sessions {
		if s.RefreshTokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) ListActiveByUser(_ context.Context, userID string) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) Create(_ context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) DeactivateAllByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	for _, s := range r.sessions {
		if s.UserID == userID {
			s.IsActive = false
		}
	}
	return nil
}

func (r *memSessionRepo) UpdateTokens(_ context.Context, id, accessTokenID, refreshTokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	s, ok := r.sessions[id]
	if !ok {
		return errors.New("session not found")
	}
	s.AccessTokenID = accessTokenID
	s.RefreshTokenHash = refreshTokenHash
	s.ExpiresAt = expiresAt
	return nil
}

type memAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *memAuditor) LogEvent(_ context.Context, _, action, _, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *memAuditor) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}

// stubLimiter returns checkErr from CheckLogin and counts failures.
type stubLimiter struct {
	checkErr error
	failures int
	resets   int
}

func (l *stubLimiter) CheckLogin(context.Context, string, string) error { return l.checkErr }
func (l *stubLimiter) RecordFailure(context.Context, string, string) error {
	l.failures++
	return nil
}
func (l *stubLimiter) Reset(context.Context, string, string) error {
	l.resets++
	return nil
}

type testEnv struct {
	svc      *Service
	users    *memUserRepo
	sessions *memSessionRepo
	auditor  *memAuditor
	limiter  *stubLimiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:    newMemUserRepo(),
		sessions: newMemSessionRepo(),
		auditor:  &memAuditor{},
		limiter:  &stubLimiter{},
	}
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	env.svc = NewService(
		env.users, env.sessions,
		security.NewHasher(4),
		tokens,
		time.Hour, 720*time.Hour,
		env.limiter, env.auditor, nil,
	)
	return env
}

func registration() Registration {
	return Registration{
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  "s3curepass",
		FirstName: "Alice",
		LastName:  "Anders",
		UserType:  userdomain.UserTypeEndUser,
	}
}

func mustRegister(t *testing.T, env *testEnv, reg Registration) *userdomain.User {
	t.Helper()
	res := env.svc.Register(context.Background(), reg)
	if !res.Success {
		t.Fatalf("Register(%q): %v (%s)", reg.Email, res.Err, res.Message)
	}
	return res.User
}

func mustLogin(t *testing.T, env *testEnv, identifier, password string, rememberMe bool) *Result {
	t.Helper()
	res := env.svc.Login(context.Background(), identifier, password, rememberMe, ClientInfo{IPAddress: "10.0.0.1", DeviceInfo: "cli-test"})
	if !res.Success {
		t.Fatalf("Login(%q): %v (%s)", identifier, res.Err, res.Message)
	}
	return res
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)
	user := mustRegister(t, env, registration())

	if user.ID == "" {
		t.Error("user ID not assigned")
	}
	if user.Username != "alice" || user.Email != "alice@example.com" {
		t.Errorf("identity fields = %q/%q", user.Username, user.Email)
	}
	if user.FirstName != "Alice" || user.LastName != "Anders" {
		t.Errorf("profile fields = %q/%q", user.FirstName, user.LastName)
	}
	if !user.IsActive {
		t.Error("new user should be active")
	}
	if user.PasswordHash == "s3curepass" || user.PasswordHash == "" {
		t.Error("password stored unhashed")
	}
	if user.LastLoginAt != nil {
		t.Error("LastLoginAt should be nil before first login")
	}
}

func TestRegister_NormalizesEmail(t *testing.T) {
	env := newTestEnv(t)
	reg := registration()
	reg.Email = "  Alice@Example.COM "
	user := mustRegister(t, env, reg)
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lowercase trimmed", user.Email)
	}
}

func TestRegister_DuplicateLeavesStoreUnchanged(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())

	sameEmail := registration()
	sameEmail.Username = "alice2"
	if res := env.svc.Register(context.Background(), sameEmail); !errors.Is(res.Err, ErrDuplicateIdentity) {
		t.Errorf("duplicate email: want ErrDuplicateIdentity, got %v", res.Err)
	}

	sameUsername := registration()
	sameUsername.Email = "other@example.com"
	if res := env.svc.Register(context.Background(), sameUsername); !errors.Is(res.Err, ErrDuplicateIdentity) {
		t.Errorf("duplicate username: want ErrDuplicateIdentity, got %v", res.Err)
	}

	if n := env.users.count(); n != 1 {
		t.Errorf("user count after duplicates = %d, want 1", n)
	}
}

func TestRegister_PolicyViolationsCollected(t *testing.T) {
	env := newTestEnv(t)
	reg := registration()
	reg.Email = "not-an-email"
	reg.Password = "short"

	res := env.svc.Register(context.Background(), reg)
	if !errors.Is(res.Err, ErrRegistrationRejected) {
		t.Fatalf("want ErrRegistrationRejected, got %v", res.Err)
	}
	for _, want := range []string{"email format is invalid", "password must be at least 8 characters"} {
		if !strings.Contains(res.Message, want) {
			t.Errorf("Message %q missing %q", res.Message, want)
		}
	}
	if env.users.count() != 0 {
		t.Error("rejected registration must not write to the store")
	}
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())

	before := time.Now().UTC()
	res := mustLogin(t, env, "alice@example.com", "s3curepass", false)

	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("token pair must be non-empty")
	}
	if len(res.RefreshToken) != 64 {
		t.Errorf("refresh token length = %d, want 64 hex chars", len(res.RefreshToken))
	}
	want := before.Add(time.Hour)
	if d := res.ExpiresAt.Sub(want); d < -5*time.Second || d > 5*time.Second {
		t.Errorf("ExpiresAt = %v, want about %v", res.ExpiresAt, want)
	}
	if res.User == nil || res.User.LastLoginAt == nil {
		t.Error("LastLoginAt not set on login")
	}

	active, _ := env.svc.ActiveSessions(context.Background(), res.User.ID)
	if len(active) != 1 {
		t.Fatalf("active sessions = %d, want 1", len(active))
	}
	if active[0].IPAddress != "10.0.0.1" || active[0].DeviceInfo != "cli-test" {
		t.Errorf("session client info = %q/%q", active[0].IPAddress, active[0].DeviceInfo)
	}
	if active[0].RefreshTokenHash == res.RefreshToken {
		t.Error("session stores the raw refresh token instead of its hash")
	}
	if env.limiter.resets == 0 {
		t.Error("successful login should reset the limiter")
	}
	if !env.auditor.has("login_success") {
		t.Error("login_success not audited")
	}
}

func TestLogin_ByUsername(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())
	mustLogin(t, env, "alice", "s3curepass", false)
}

func TestLogin_RememberMeExtendsExpiry(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())

	before := time.Now().UTC()
	res := mustLogin(t, env, "alice@example.com", "s3curepass", true)

	want := before.Add(720 * time.Hour)
	if d := res.ExpiresAt.Sub(want); d < -5*time.Second || d > 5*time.Second {
		t.Errorf("ExpiresAt = %v, want about %v", res.ExpiresAt, want)
	}
}

func TestLogin_TokensDistinctAcrossLogins(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())

	first := mustLogin(t, env, "alice", "s3curepass", false)
	second := mustLogin(t, env, "alice", "s3curepass", false)

	if first.AccessToken == second.AccessToken {
		t.Error("access tokens must differ across logins")
	}
	if first.RefreshToken == second.RefreshToken {
		t.Error("refresh tokens must differ across logins")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())

	res := env.svc.Login(context.Background(), "alice", "wrongpass1", false, ClientInfo{})
	if !errors.Is(res.Err, ErrInvalidCredentials) {
		t.Errorf("want ErrInvalidCredentials, got %v", res.Err)
	}
	if env.limiter.failures != 1 {
		t.Errorf("limiter failures = %d, want 1", env.limiter.failures)
	}
}

func TestLogin_MissingAndInactiveIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	user := mustRegister(t, env, registration())
	env.users.users[user.ID].IsActive = false

	missing := env.svc.Login(context.Background(), "ghost@example.com", "s3curepass", false, ClientInfo{})
	inactive := env.svc.Login(context.Background(), "alice@example.com", "s3curepass", false, ClientInfo{})

	if !errors.Is(missing.Err, ErrAccountUnavailable) {
		t.Errorf("missing account: want ErrAccountUnavailable, got %v", missing.Err)
	}
	if !errors.Is(inactive.Err, ErrAccountUnavailable) {
		t.Errorf("inactive account: want ErrAccountUnavailable, got %v", inactive.Err)
	}
	// The inactive path short-circuits before password verification: the
	// correct password yields the same failure as any other.
	wrongPass := env.svc.Login(context.Background(), "alice@example.com", "nonsense99", false, ClientInfo{})
	if !errors.Is(wrongPass.Err, ErrAccountUnavailable) {
		t.Errorf("inactive account wrong password: want ErrAccountUnavailable, got %v", wrongPass.Err)
	}
	if missing.Message != inactive.Message {
		t.Errorf("messages differ: %q vs %q", missing.Message, inactive.Message)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())
	env.limiter.checkErr = ratelimit.ErrRateLimited

	res := env.svc.Login(context.Background(), "alice", "s3curepass", false, ClientInfo{})
	if !errors.Is(res.Err, ErrTooManyAttempts) {
		t.Errorf("want ErrTooManyAttempts, got %v", res.Err)
	}
}

func TestLogin_LimiterDownFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())
	env.limiter.checkErr = ratelimit.ErrRedisUnavailable

	res := env.svc.Login(context.Background(), "alice", "s3curepass", false, ClientInfo{})
	if !res.Success {
		t.Errorf("limiter outage must not block login: %v", res.Err)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	user := mustRegister(t, env, registration())
	mustLogin(t, env, "alice", "s3curepass", false)
	mustLogin(t, env, "alice", "s3curepass", false)

	ctx := context.Background()
	if !env.svc.Logout(ctx, user.ID) {
		t.Fatal("first logout failed")
	}
	active, _ := env.svc.ActiveSessions(ctx, user.ID)
	if len(active) != 0 {
		t.Errorf("active sessions after logout = %d, want 0", len(active))
	}
	if !env.svc.Logout(ctx, user.ID) {
		t.Error("second logout must also succeed")
	}
}

func TestRefresh_RotatesSingleUse(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())
	login := mustLogin(t, env, "alice", "s3curepass", true)

	ctx := context.Background()
	rotated := env.svc.Refresh(ctx, login.RefreshToken)
	if !rotated.Success {
		t.Fatalf("Refresh: %v", rotated.Err)
	}
	if rotated.AccessToken == login.AccessToken || rotated.RefreshToken == login.RefreshToken {
		t.Error("refresh must rotate both tokens")
	}

	// The redeemed token is spent.
	if res := env.svc.Refresh(ctx, login.RefreshToken); !errors.Is(res.Err, ErrInvalidRefreshToken) {
		t.Errorf("second redemption: want ErrInvalidRefreshToken, got %v", res.Err)
	}
	// The rotated token works.
	if res := env.svc.Refresh(ctx, rotated.RefreshToken); !res.Success {
		t.Errorf("rotated token redemption: %v", res.Err)
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	env := newTestEnv(t)
	res := env.svc.Refresh(context.Background(), strings.Repeat("ab", 32))
	if !errors.Is(res.Err, ErrInvalidRefreshToken) {
		t.Errorf("want ErrInvalidRefreshToken, got %v", res.Err)
	}
}

func TestRefresh_ExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())
	login := mustLogin(t, env, "alice", "s3curepass", false)

	for _, s := range env.sessions.sessions {
		s.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}
	if res := env.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(res.Err, ErrInvalidRefreshToken) {
		t.Errorf("expired session: want ErrInvalidRefreshToken, got %v", res.Err)
	}
}

func TestRefresh_DeactivatedUser(t *testing.T) {
	env := newTestEnv(t)
	user := mustRegister(t, env, registration())
	login := mustLogin(t, env, "alice", "s3curepass", false)

	env.users.users[user.ID].IsActive = false
	if res := env.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(res.Err, ErrInvalidRefreshToken) {
		t.Errorf("deactivated user: want ErrInvalidRefreshToken, got %v", res.Err)
	}
}

func TestRefresh_AfterLogout(t *testing.T) {
	env := newTestEnv(t)
	user := mustRegister(t, env, registration())
	login := mustLogin(t, env, "alice", "s3curepass", false)

	env.svc.Logout(context.Background(), user.ID)
	if res := env.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(res.Err, ErrInvalidRefreshToken) {
		t.Errorf("refresh after logout: want ErrInvalidRefreshToken, got %v", res.Err)
	}
}

func TestValidateUser_NoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	user := mustRegister(t, env, registration())

	ctx := context.Background()
	if !env.svc.ValidateUser(ctx, "alice@example.com", "s3curepass") {
		t.Error("correct credentials should validate")
	}
	if env.svc.ValidateUser(ctx, "alice@example.com", "wrongpass1") {
		t.Error("wrong password should not validate")
	}
	if env.svc.ValidateUser(ctx, "ghost@example.com", "s3curepass") {
		t.Error("unknown identifier should not validate")
	}

	active, _ := env.svc.ActiveSessions(ctx, user.ID)
	if len(active) != 0 {
		t.Error("ValidateUser must not create sessions")
	}
	stored, _ := env.svc.GetUserByID(ctx, user.ID)
	if stored.LastLoginAt != nil {
		t.Error("ValidateUser must not touch LastLoginAt")
	}
}

func TestIsUserActive(t *testing.T) {
	env := newTestEnv(t)
	user := mustRegister(t, env, registration())

	ctx := context.Background()
	if !env.svc.IsUserActive(ctx, user.ID) {
		t.Error("active user reported inactive")
	}
	env.users.users[user.ID].IsActive = false
	if env.svc.IsUserActive(ctx, user.ID) {
		t.Error("inactive user reported active")
	}
	if env.svc.IsUserActive(ctx, "no-such-id") {
		t.Error("unknown user reported active")
	}
}

func TestStoreFailureNeverEscapes(t *testing.T) {
	env := newTestEnv(t)
	mustRegister(t, env, registration())
	env.users.failErr = errors.New("connection refused")

	ctx := context.Background()
	if res := env.svc.Login(ctx, "alice", "s3curepass", false, ClientInfo{}); !errors.Is(res.Err, ErrOperationFailed) {
		t.Errorf("login over failing store: want ErrOperationFailed, got %v", res.Err)
	}
	if res := env.svc.Register(ctx, registration()); !errors.Is(res.Err, ErrOperationFailed) {
		t.Errorf("register over failing store: want ErrOperationFailed, got %v", res.Err)
	}
	if env.svc.ValidateUser(ctx, "alice", "s3curepass") {
		t.Error("ValidateUser over failing store must return false")
	}
}

func TestSessionStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	user := mustRegister(t, env, registration())
	env.sessions.failErr = errors.New("connection refused")

	ctx := context.Background()
	if res := env.svc.Login(ctx, "alice", "s3curepass", false, ClientInfo{}); !errors.Is(res.Err, ErrOperationFailed) {
		t.Errorf("login with failing session store: want ErrOperationFailed, got %v", res.Err)
	}
	if env.svc.Logout(ctx, user.ID) {
		t.Error("logout with failing session store must return false")
	}
}
