package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func (h *harness) verifyDeps() VerifyDeps {
	return VerifyDeps{
		Decoder:  h.jwt,
		Alg:      "HS256",
		Issuer:   "user-service",
		Audience: "api",
		Users:    h.users,
		Sessions: h.sessions,
		Hooks:    h.hooks(),
		Errors:   testErrors,
	}
}

func signClaims(t *testing.T, method gjwt.SigningMethod, key interface{}, claims gjwt.MapClaims) string {
	t.Helper()
	token, err := gjwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func (h *harness) baseClaims() gjwt.MapClaims {
	return gjwt.MapClaims{
		"iss":   "user-service",
		"aud":   "api",
		"sub":   "user@example.com",
		"sid":   "sid-1",
		"roles": []string{"ROLE_USER"},
		"nbf":   h.now.Add(-time.Minute).Unix(),
		"exp":   h.now.Add(time.Minute).Unix(),
	}
}

func TestVerifyResolvesDomainUser(t *testing.T) {
	h := newHarness(t, testUser())
	token, err := h.jwt.CreateAccess("user@example.com", "sid-1", []string{"ROLE_USER", "ROLE_USER", "ROLE_ADMIN"}, h.now)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	res := RunVerify(context.Background(), token, h.verifyDeps())
	if res.Err != nil {
		t.Fatalf("verify: %v (%s)", res.Err, res.Reason)
	}
	if res.Service || res.User.ID != testUser().ID || res.Claims.SessionID != "sid-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Claims.Roles) != 2 || res.Claims.Roles[0] != "ROLE_USER" || res.Claims.Roles[1] != "ROLE_ADMIN" {
		t.Fatalf("roles must be de-duplicated in order, got %v", res.Claims.Roles)
	}
}

func TestVerifyResolvesByIDForUUIDSubject(t *testing.T) {
	h := newHarness(t, testUser())
	claims := h.baseClaims()
	claims["sub"] = testUser().ID
	token := signClaims(t, gjwt.SigningMethodHS256, []byte(testSigningKey), claims)

	res := RunVerify(context.Background(), token, h.verifyDeps())
	if res.Err != nil || res.User.Email != "user@example.com" {
		t.Fatalf("expected id lookup to resolve the user, got %+v", res)
	}
}

func TestVerifyServicePrincipalSkipsLookup(t *testing.T) {
	h := newHarness(t)
	h.users.failWith = errors.New("must not be called")
	claims := h.baseClaims()
	claims["sub"] = "billing-service"
	claims["roles"] = []string{"ROLE_SERVICE"}
	token := signClaims(t, gjwt.SigningMethodHS256, []byte(testSigningKey), claims)

	res := RunVerify(context.Background(), token, h.verifyDeps())
	if res.Err != nil || !res.Service || res.Claims.Subject != "billing-service" {
		t.Fatalf("expected service principal, got %+v", res)
	}
}

func TestVerifyRejections(t *testing.T) {
	h := newHarness(t, testUser())
	key := []byte(testSigningKey)

	mutate := func(f func(gjwt.MapClaims)) string {
		c := h.baseClaims()
		f(c)
		return signClaims(t, gjwt.SigningMethodHS256, key, c)
	}
	valid := mutate(func(gjwt.MapClaims) {})

	cases := []struct {
		name  string
		token string
		kind  VerifyFailureKind
	}{
		{"two segments", "abc.def", VerifyFailureToken},
		{"four segments", valid + ".x", VerifyFailureToken},
		{"empty segment", "abc..def", VerifyFailureToken},
		{"header not json", "bm90anNvbg.e30.sig", VerifyFailureToken},
		{"bad signature", valid[:len(valid)-2] + "xx", VerifyFailureToken},
		{"other alg", signClaims(t, gjwt.SigningMethodHS384, key, h.baseClaims()), VerifyFailureToken},
		{"issuer", mutate(func(c gjwt.MapClaims) { c["iss"] = "other" }), VerifyFailureClaims},
		{"audience", mutate(func(c gjwt.MapClaims) { c["aud"] = "other" }), VerifyFailureClaims},
		{"audience list with empty member", mutate(func(c gjwt.MapClaims) { c["aud"] = []string{"api", ""} }), VerifyFailureClaims},
		{"float exp", mutate(func(c gjwt.MapClaims) { c["exp"] = float64(h.now.Unix()) + 60.5 }), VerifyFailureClaims},
		{"string nbf", mutate(func(c gjwt.MapClaims) { c["nbf"] = "0" }), VerifyFailureClaims},
		{"expired", mutate(func(c gjwt.MapClaims) { c["exp"] = h.now.Unix() }), VerifyFailureClaims},
		{"not yet valid", mutate(func(c gjwt.MapClaims) { c["nbf"] = h.now.Add(time.Minute).Unix() }), VerifyFailureClaims},
		{"empty sub", mutate(func(c gjwt.MapClaims) { c["sub"] = "" }), VerifyFailureClaims},
		{"missing sid", mutate(func(c gjwt.MapClaims) { delete(c, "sid") }), VerifyFailureClaims},
		{"empty roles", mutate(func(c gjwt.MapClaims) { c["roles"] = []string{} }), VerifyFailureClaims},
		{"blank role", mutate(func(c gjwt.MapClaims) { c["roles"] = []string{"ROLE_USER", ""} }), VerifyFailureClaims},
		{"unknown subject", mutate(func(c gjwt.MapClaims) { c["sub"] = "ghost@example.com" }), VerifyFailureLookup},
		{"unknown uuid", mutate(func(c gjwt.MapClaims) { c["sub"] = "8d1e5f1c-0000-4000-8000-000000000000" }), VerifyFailureLookup},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := RunVerify(context.Background(), tc.token, h.verifyDeps())
			if res.Failure != tc.kind {
				t.Fatalf("failure kind = %v (%s), want %v", res.Failure, res.Reason, tc.kind)
			}
			if res.Err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestVerifyAudienceList(t *testing.T) {
	h := newHarness(t, testUser())
	claims := h.baseClaims()
	claims["aud"] = []string{"web", "api"}
	token := signClaims(t, gjwt.SigningMethodHS256, []byte(testSigningKey), claims)

	if res := RunVerify(context.Background(), token, h.verifyDeps()); res.Err != nil {
		t.Fatalf("audience list containing the configured audience must pass: %s", res.Reason)
	}
}

func TestVerifyRequireActiveSession(t *testing.T) {
	h := newHarness(t, testUser())
	res := h.signIn(t, false)

	deps := h.verifyDeps()
	deps.RequireActiveSession = true
	if v := RunVerify(context.Background(), res.Issued.AccessToken, deps); v.Err != nil {
		t.Fatalf("active session must verify: %s", v.Reason)
	}

	if err := RunSignOut(context.Background(), res.Issued.SessionID, testUser().ID, h.sessionDeps()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	v := RunVerify(context.Background(), res.Issued.AccessToken, deps)
	if v.Failure != VerifyFailureSession || v.Err != testErrors.AuthenticationRequired {
		t.Fatalf("revoked session must fail verification, got %+v", v)
	}
}
