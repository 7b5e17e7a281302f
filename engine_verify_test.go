package userauth

import (
	"context"
	"errors"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	f := newUserFixture(t)
	now := f.clock.Now()

	claims := gojwt.MapClaims{
		"sub":   "user@example.com",
		"sid":   "s1",
		"roles": []string{"ROLE_USER"},
		"iss":   "user-service",
		"aud":   "user-service",
		"nbf":   now.Unix(),
		"exp":   now.Add(time.Minute).Unix(),
	}
	hs512, err := gojwt.NewWithClaims(gojwt.SigningMethodHS512, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign HS512: %v", err)
	}
	wrongKey, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("ffffffffffffffffffffffffffffffff"))
	if err != nil {
		t.Fatalf("sign HS256: %v", err)
	}
	unsigned, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, claims).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	wrongAudience := gojwt.MapClaims{}
	for k, v := range claims {
		wrongAudience[k] = v
	}
	wrongAudience["aud"] = "billing"
	foreign, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, wrongAudience).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign foreign: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.token"},
		{name: "algorithm mismatch", token: hs512},
		{name: "wrong key", token: wrongKey},
		{name: "unsigned", token: unsigned},
		{name: "wrong audience", token: foreign},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Authenticate(context.Background(), tc.token)
			if !errors.Is(err, ErrAuthenticationRequired) {
				t.Fatalf("err = %v, want ErrAuthenticationRequired", err)
			}
		})
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	f := newUserFixture(t)
	res := f.signIn(t)

	f.clock.Advance(testConfig().JWT.AccessTTL + time.Minute)
	if _, err := f.engine.Authenticate(context.Background(), res.AccessToken); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("err = %v, want ErrAuthenticationRequired", err)
	}
	if got := f.engine.MetricsSnapshot().Counters[MetricVerifyFailure]; got != 1 {
		t.Fatalf("verify failure counter = %d", got)
	}
}

func TestAuthenticateServicePrincipal(t *testing.T) {
	f := newUserFixture(t)

	token, err := f.engine.jwt.CreateAccess("billing-service", "svc", []string{"ROLE_SERVICE"}, f.clock.Now())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	id, err := f.engine.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	svc, ok := id.(ServicePrincipal)
	if !ok {
		t.Fatalf("identity = %T, want ServicePrincipal", id)
	}
	if svc.Subject != "billing-service" {
		t.Fatalf("subject = %q", svc.Subject)
	}
}

func TestAuthenticateSubjectByID(t *testing.T) {
	f := newUserFixture(t)

	token, err := f.engine.jwt.CreateAccess(testUserID, "s1", []string{"ROLE_USER"}, f.clock.Now())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	id, err := f.engine.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user := id.(DomainUser); user.User.Email != "user@example.com" {
		t.Fatalf("user = %+v", user.User)
	}

	unknown, err := f.engine.jwt.CreateAccess("ghost@example.com", "s1", []string{"ROLE_USER"}, f.clock.Now())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := f.engine.Authenticate(context.Background(), unknown); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("unknown subject err = %v", err)
	}
}

func TestAuthenticateRequireActiveSession(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.RequireActiveSession = true
	f := newFixture(t, cfg, User{
		ID:           testUserID,
		Email:        "user@example.com",
		PasswordHash: hashPassword(t, cfg, testPassword),
	})
	ctx := context.Background()
	res := f.signIn(t)

	if _, err := f.engine.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := f.engine.SignOut(ctx, SignOut{SessionID: res.SessionID, UserID: testUserID}); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := f.engine.Authenticate(ctx, res.AccessToken); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("err = %v, want ErrAuthenticationRequired", err)
	}

	f.redis.SetError("backend down")
	defer f.redis.SetError("")
	if _, err := f.engine.Authenticate(ctx, res.AccessToken); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestAuthenticateWithoutActiveSessionCheck(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	res := f.signIn(t)

	if err := f.engine.SignOut(ctx, SignOut{SessionID: res.SessionID, UserID: testUserID}); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	// Stateless verification accepts the token until it expires.
	if _, err := f.engine.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}
