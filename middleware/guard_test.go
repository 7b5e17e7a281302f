package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	userauth "github.com/VilnaCRM-Org/user-service-sub004"
)

type fakeAuth struct {
	identities map[string]userauth.Identity
	err        error
	calls      int
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (userauth.Identity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.identities[token]
	if !ok {
		return nil, userauth.ErrAuthenticationRequired
	}
	return id, nil
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{identities: map[string]userauth.Identity{
		"user-token": userauth.DomainUser{
			User:      userauth.User{ID: "u1", Email: "user@example.com"},
			SessionID: "s1",
			Roles:     []string{"ROLE_USER"},
		},
		"service-token": userauth.ServicePrincipal{
			Subject: "billing",
			Roles:   []string{"ROLE_SERVICE"},
		},
	}}
}

func okHandler(t *testing.T, want string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("identity missing from context")
		}
		switch v := id.(type) {
		case userauth.DomainUser:
			if want != "user" {
				t.Fatalf("got user identity, want %s", want)
			}
			if v.User.ID != "u1" || v.SessionID != "s1" {
				t.Fatalf("identity = %+v", v)
			}
		case userauth.ServicePrincipal:
			if want != "service" {
				t.Fatalf("got service identity, want %s", want)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie *http.Cookie
		want   string
		ok     bool
	}{
		{"bearer header", "Bearer abc", nil, "abc", true},
		{"lowercase scheme", "bearer abc", nil, "abc", true},
		{"header wins over cookie", "Bearer abc", &http.Cookie{Name: DefaultCookieName, Value: "cookie"}, "abc", true},
		{"cookie only", "", &http.Cookie{Name: DefaultCookieName, Value: "cookie"}, "cookie", true},
		{"basic scheme falls through", "Basic Zm9v", nil, "", false},
		{"empty bearer", "Bearer ", nil, "", false},
		{"other cookie", "", &http.Cookie{Name: "session", Value: "x"}, "", false},
		{"nothing", "", nil, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != nil {
				r.AddCookie(tc.cookie)
			}
			got, ok := ExtractToken(r, "")
			if got != tc.want || ok != tc.ok {
				t.Fatalf("ExtractToken = (%q, %v), want (%q, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestGuardAdmitsValidToken(t *testing.T) {
	auth := newFakeAuth()
	h := Guard(auth, Options{})(okHandler(t, "user"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer user-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGuardRejectsInvalidToken(t *testing.T) {
	h := Guard(newFakeAuth(), Options{})(okHandler(t, "user"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer forged")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestGuardMissingTokenUsesFallback(t *testing.T) {
	auth := newFakeAuth()
	fallback := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Guard(auth, Options{Fallback: fallback})(okHandler(t, "user"))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want fallback", w.Code)
	}
	if auth.calls != 0 {
		t.Fatal("Authenticate must not run without a token")
	}
}

func TestGuardMissingTokenWithoutFallback(t *testing.T) {
	h := Guard(newFakeAuth(), Options{})(okHandler(t, "user"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestGuardBackendUnavailable(t *testing.T) {
	auth := newFakeAuth()
	auth.err = userauth.ErrBackendUnavailable
	h := Guard(auth, Options{})(okHandler(t, "user"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer user-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestRequireServiceAndUser(t *testing.T) {
	tests := []struct {
		name  string
		guard func(Authenticator, Options) func(http.Handler) http.Handler
		token string
		want  int
		kind  string
	}{
		{"service admits service", RequireService, "service-token", http.StatusNoContent, "service"},
		{"service forbids user", RequireService, "user-token", http.StatusForbidden, "service"},
		{"user admits user", RequireUser, "user-token", http.StatusNoContent, "user"},
		{"user forbids service", RequireUser, "service-token", http.StatusForbidden, "user"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := tc.guard(newFakeAuth(), Options{})(okHandler(t, tc.kind))
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+tc.token)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestGuardCookieName(t *testing.T) {
	h := Guard(newFakeAuth(), Options{CookieName: "__Host-custom"})(okHandler(t, "user"))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "__Host-custom", Value: "user-token"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
}
