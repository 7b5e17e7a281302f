package userauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/mail"
	"github.com/VilnaCRM-Org/user-service-sub004/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testSigningKey = "0123456789abcdef0123456789abcdef"
	testPassword   = "Password1!"
	testUserID     = "6f1c2a9e-4b1d-4c55-9a6e-0f5a4c2b7d10"
)

// testConfig is DefaultConfig with an HS256 key, cheap Argon2 parameters
// and synchronous event delivery.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(testSigningKey)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Events.Synchronous = true
	return cfg
}

/*
====================================
FAKE USER PROVIDER
====================================
*/

type fakeProvider struct {
	mu    sync.Mutex
	users map[string]*User
	steps map[string]int64
	codes map[string]map[[32]byte]bool

	failWith error
}

func newFakeProvider(users ...User) *fakeProvider {
	p := &fakeProvider{
		users: make(map[string]*User),
		steps: make(map[string]int64),
		codes: make(map[string]map[[32]byte]bool),
	}
	for i := range users {
		u := users[i]
		p.users[u.ID] = &u
	}
	return p
}

func (p *fakeProvider) GetUserByEmail(_ context.Context, email string) (User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return User{}, p.failWith
	}
	for _, u := range p.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return User{}, ErrUserByEmailNotFound
}

func (p *fakeProvider) GetUserByID(_ context.Context, userID string) (User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return User{}, p.failWith
	}
	u, ok := p.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

func (p *fakeProvider) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (p *fakeProvider) SetTwoFactorSecret(_ context.Context, userID string, secret []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorSecret = append([]byte(nil), secret...)
	return nil
}

func (p *fakeProvider) EnableTwoFactor(_ context.Context, userID string, hashes [][32]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorEnabled = true
	p.setCodes(userID, hashes)
	return nil
}

func (p *fakeProvider) DisableTwoFactor(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TwoFactorEnabled = false
	u.TwoFactorSecret = nil
	delete(p.codes, userID)
	delete(p.steps, userID)
	return nil
}

func (p *fakeProvider) MarkTwoFactorStep(_ context.Context, userID string, step int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.steps[userID]; ok && step <= last {
		return false, nil
	}
	p.steps[userID] = step
	return true, nil
}

func (p *fakeProvider) ReplaceRecoveryCodes(_ context.Context, userID string, hashes [][32]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setCodes(userID, hashes)
	return nil
}

func (p *fakeProvider) HasRecoveryCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codes[userID][hash], nil
}

func (p *fakeProvider) ConsumeRecoveryCode(_ context.Context, userID string, hash [32]byte) (int, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := p.codes[userID]
	if !set[hash] {
		return len(set), false, nil
	}
	delete(set, hash)
	return len(set), true, nil
}

func (p *fakeProvider) setCodes(userID string, hashes [][32]byte) {
	set := make(map[[32]byte]bool, len(hashes))
	for _, h := range hashes {
		set[h] = true
	}
	p.codes[userID] = set
}

func (p *fakeProvider) user(id string) User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.users[id]
}

/*
====================================
FAKE COLLABORATORS
====================================
*/

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) named(name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

/*
====================================
ENGINE FIXTURE
====================================
*/

type fixture struct {
	engine *Engine
	redis  *miniredis.Miniredis
	users  *fakeProvider
	events *recordingSink
	mailer *fakeMailer
	clock  *testClock
}

func hashPassword(t *testing.T, cfg Config, plain string) string {
	t.Helper()
	h, err := password.NewHasher(cfg.Password)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	hash, err := h.Hash(plain)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return hash
}

func newFixture(t *testing.T, cfg Config, users ...User) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		redis:  mr,
		users:  newFakeProvider(users...),
		events: &recordingSink{},
		mailer: &fakeMailer{},
		clock:  &testClock{now: time.Now().Truncate(time.Second)},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(f.users).
		WithEventSink(f.events).
		WithMailer(f.mailer).
		WithClock(f.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

// newUserFixture seeds user@example.com with testPassword.
func newUserFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	return newFixture(t, cfg, User{
		ID:           testUserID,
		Email:        "user@example.com",
		Initials:     "UE",
		PasswordHash: hashPassword(t, cfg, testPassword),
	})
}

func (f *fixture) signIn(t *testing.T) *SignInResult {
	t.Helper()
	res, err := f.engine.SignIn(context.Background(), SignIn{
		Email:     "user@example.com",
		Password:  testPassword,
		IP:        "203.0.113.7",
		UserAgent: "test-agent",
	})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	return res
}

// totpNow returns the current code for secret at the fixture clock.
func (f *fixture) totpNow(t *testing.T, secret []byte) string {
	t.Helper()
	code, err := hotpCode(secret, f.clock.Now().Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode: %v", err)
	}
	return code
}
