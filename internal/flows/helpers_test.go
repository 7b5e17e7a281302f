package flows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/limiters"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/stores"
	"github.com/VilnaCRM-Org/user-service-sub004/jwt"
	"github.com/VilnaCRM-Org/user-service-sub004/refresh"
	"github.com/VilnaCRM-Org/user-service-sub004/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testErrors = Errors{
	EngineNotReady:          errors.New("engine not ready"),
	BackendUnavailable:      errors.New("backend unavailable"),
	AuthenticationRequired:  errors.New("authentication required"),
	InvalidToken:            errors.New("invalid token"),
	InvalidClaims:           errors.New("invalid claims"),
	InvalidCredentials:      errors.New("invalid credentials"),
	AccountLocked:           errors.New("account locked"),
	TheftDetected:           errors.New("theft detected"),
	SessionNotFound:         errors.New("session not found"),
	TwoFactorInvalidCode:    errors.New("invalid code"),
	TwoFactorRejected:       errors.New("two-factor rejected"),
	TwoFactorNotEnabled:     errors.New("two-factor not enabled"),
	TwoFactorAlreadyEnabled: errors.New("two-factor already enabled"),
	TwoFactorNotConfigured:  errors.New("two-factor not configured"),
	TwoFactorRateLimited:    errors.New("two-factor rate limited"),
	UserNotFound:            errors.New("user not found"),
	UserByEmailNotFound:     errors.New("user by email not found"),
	InvalidPassword:         errors.New("invalid password"),
	PasswordPolicy:          errors.New("password policy"),
	RateLimitExceeded:       errors.New("rate limit exceeded"),
	TokenNotFound:           errors.New("token not found"),
	TokenMismatch:           errors.New("token mismatch"),
	TokenAlreadyUsed:        errors.New("token already used"),
	TokenExpired:            errors.New("token expired"),
}

const testSigningKey = "0123456789abcdef0123456789abcdef"

// fakeUsers stores passwords in clear: "plain:<password>".
type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]*UserRecord
	steps    map[string]int64
	codes    map[string]map[[32]byte]bool
	failWith error
}

func newFakeUsers(records ...UserRecord) *fakeUsers {
	f := &fakeUsers{
		users: make(map[string]*UserRecord),
		steps: make(map[string]int64),
		codes: make(map[string]map[[32]byte]bool),
	}
	for i := range records {
		r := records[i]
		f.users[r.ID] = &r
	}
	return f
}

func (f *fakeUsers) ByEmail(_ context.Context, email string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return UserRecord{}, f.failWith
	}
	for _, u := range f.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return UserRecord{}, ErrNoUser
}

func (f *fakeUsers) ByID(_ context.Context, id string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return UserRecord{}, f.failWith
	}
	u, ok := f.users[id]
	if !ok {
		return UserRecord{}, ErrNoUser
	}
	return *u, nil
}

func (f *fakeUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return ErrNoUser
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsers) SetTwoFactorSecret(_ context.Context, id string, secret []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].TwoFactorSecret = secret
	return nil
}

func (f *fakeUsers) EnableTwoFactor(_ context.Context, id string, hashes [][32]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].TwoFactorEnabled = true
	f.setCodes(id, hashes)
	return nil
}

func (f *fakeUsers) DisableTwoFactor(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].TwoFactorEnabled = false
	f.users[id].TwoFactorSecret = nil
	delete(f.codes, id)
	return nil
}

func (f *fakeUsers) MarkTwoFactorStep(_ context.Context, id string, step int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if last, ok := f.steps[id]; ok && step <= last {
		return false, nil
	}
	f.steps[id] = step
	return true, nil
}

func (f *fakeUsers) ReplaceRecoveryCodes(_ context.Context, id string, hashes [][32]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCodes(id, hashes)
	return nil
}

func (f *fakeUsers) setCodes(id string, hashes [][32]byte) {
	set := make(map[[32]byte]bool, len(hashes))
	for _, h := range hashes {
		set[h] = true
	}
	f.codes[id] = set
}

func (f *fakeUsers) HasRecoveryCode(_ context.Context, id string, hash [32]byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[id][hash], nil
}

func (f *fakeUsers) ConsumeRecoveryCode(_ context.Context, id string, hash [32]byte) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.codes[id]
	if !set[hash] {
		return len(set), false, nil
	}
	delete(set, hash)
	return len(set), true, nil
}

func (f *fakeUsers) password(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].PasswordHash
}

func plainVerify(plain, hash string) (bool, error) {
	return hash == "plain:"+plain, nil
}

func plainHash(plain string) (string, error) {
	return "plain:" + plain, nil
}

// stubTOTP accepts "123456" for the current step.
type stubTOTP struct{}

func (stubTOTP) GenerateSecret() ([]byte, string, error) {
	return []byte("secret-bytes"), "ONSWG4TFOQWWE6LUMVZQ", nil
}

func (stubTOTP) ProvisionURI(secret, account string) string {
	return "otpauth://totp/test:" + account + "?secret=" + secret
}

func (stubTOTP) VerifyCode(_ []byte, code string, now time.Time) (bool, int64, error) {
	return code == "123456", now.Unix() / 30, nil
}

func (stubTOTP) Digits() int { return 6 }

type recordedEvents struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordedEvents) emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordedEvents) named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	redis    *redis.Client
	users    *fakeUsers
	events   *recordedEvents
	sessions *session.Store
	refresh  *refresh.Store
	pending  *stores.PendingTwoFactorStore
	resets   *stores.PasswordResetStore
	jwt      *jwt.Manager
	now      time.Time
}

func newHarness(t *testing.T, users ...UserRecord) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	m, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(testSigningKey),
		Issuer:        "user-service",
		Audience:      "api",
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	return &harness{
		redis:    rdb,
		users:    newFakeUsers(users...),
		events:   &recordedEvents{},
		sessions: session.NewStore(rdb, ""),
		refresh:  refresh.NewStore(rdb, ""),
		pending:  stores.NewPendingTwoFactorStore(rdb, ""),
		resets:   stores.NewPasswordResetStore(rdb, "", 24*time.Hour),
		jwt:      m,
		now:      time.Now(),
	}
}

func (h *harness) hooks() Hooks {
	return Hooks{
		Now:  func() time.Time { return h.now },
		Emit: h.events.emit,
	}
}

func (h *harness) issueDeps() IssueDeps {
	return IssueDeps{
		Sessions:      h.sessions,
		Refresh:       h.refresh,
		Access:        h.jwt,
		RefreshTTL:    24 * time.Hour,
		RememberMeTTL: 30 * 24 * time.Hour,
	}
}

func (h *harness) signInDeps() SignInDeps {
	return SignInDeps{
		Users: h.users,
		Lockout: limiters.NewLockoutLimiter(h.redis, limiters.LockoutConfig{
			Enabled:   true,
			Threshold: 3,
			Duration:  15 * time.Minute,
		}),
		Pending:        h.pending,
		Issue:          h.issueDeps(),
		VerifyPassword: plainVerify,
		PendingTTL:     5 * time.Minute,
		Hooks:          h.hooks(),
		Errors:         testErrors,
	}
}

func (h *harness) twoFactorDeps() TwoFactorDeps {
	return TwoFactorDeps{
		Users:              h.users,
		Sessions:           h.sessions,
		Refresh:            h.refresh,
		Pending:            h.pending,
		TOTP:               stubTOTP{},
		Issue:              h.issueDeps(),
		MaxAttempts:        3,
		RecoveryCodeCount:  8,
		RecoveryCodeLength: 10,
		Hooks:              h.hooks(),
		Errors:             testErrors,
	}
}

func (h *harness) refreshDeps() RefreshDeps {
	return RefreshDeps{
		Sessions:            h.sessions,
		Refresh:             h.refresh,
		Access:              h.jwt,
		Users:               h.users,
		TreatRevokedAsTheft: true,
		Hooks:               h.hooks(),
		Errors:              testErrors,
	}
}

func (h *harness) sessionDeps() SessionDeps {
	return SessionDeps{Sessions: h.sessions, Refresh: h.refresh, Hooks: h.hooks(), Errors: testErrors}
}

func testUser() UserRecord {
	return UserRecord{
		ID:           "2b9fdcd6-5a5f-4d0c-a3a8-1f2e6f0d4c11",
		Email:        "user@example.com",
		Initials:     "UE",
		PasswordHash: "plain:Password1!",
		Roles:        []string{"ROLE_USER"},
	}
}

func (h *harness) signIn(t *testing.T, rememberMe bool) SignInResult {
	t.Helper()
	res, err := RunSignIn(context.Background(), SignInInput{
		Email:      "user@example.com",
		Password:   "Password1!",
		RememberMe: rememberMe,
		IP:         "203.0.113.7",
		UserAgent:  "curl/8.0",
	}, h.signInDeps())
	if err != nil {
		t.Fatalf("sign-in: %v", err)
	}
	return res
}
