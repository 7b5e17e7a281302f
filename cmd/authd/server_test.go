package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	userauth "github.com/VilnaCRM-Org/user-service-sub004"
)

type fakeEngine struct {
	signInErr error
	signedOut []string
}

func (f *fakeEngine) Authenticate(_ context.Context, token string) (userauth.Identity, error) {
	if token != "good" {
		return nil, userauth.ErrAuthenticationRequired
	}
	return userauth.DomainUser{
		User:      userauth.User{ID: "u1", Email: "user@example.com"},
		SessionID: "s1",
	}, nil
}

func (f *fakeEngine) MetricsSnapshot() userauth.MetricsSnapshot {
	return userauth.MetricsSnapshot{Counters: map[userauth.MetricID]uint64{userauth.MetricSignInSuccess: 2}}
}

func (f *fakeEngine) EventsDropped() uint64 { return 0 }

func (f *fakeEngine) SignIn(_ context.Context, cmd userauth.SignIn) (*userauth.SignInResult, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return &userauth.SignInResult{AccessToken: "a-" + cmd.Email, RefreshToken: "r", SessionID: "s1"}, nil
}

func (f *fakeEngine) CompleteTwoFactor(context.Context, userauth.CompleteTwoFactor) (*userauth.TokenPair, error) {
	return nil, userauth.ErrTwoFactorRejected
}

func (f *fakeEngine) SetupTwoFactor(context.Context, userauth.SetupTwoFactor) (*userauth.TwoFactorSetup, error) {
	return &userauth.TwoFactorSetup{OTPAuthURI: "otpauth://totp/x", Secret: "S"}, nil
}

func (f *fakeEngine) ConfirmTwoFactor(context.Context, userauth.ConfirmTwoFactor) (*userauth.RecoveryCodes, error) {
	return &userauth.RecoveryCodes{Codes: []string{"AAAA-BBBB"}}, nil
}

func (f *fakeEngine) DisableTwoFactor(context.Context, userauth.DisableTwoFactor) error {
	return userauth.ErrTwoFactorNotEnabled
}

func (f *fakeEngine) RegenerateRecoveryCodes(context.Context, userauth.RegenerateRecoveryCodes) (*userauth.RecoveryCodes, error) {
	return &userauth.RecoveryCodes{Codes: []string{"CCCC-DDDD"}}, nil
}

func (f *fakeEngine) RefreshToken(context.Context, userauth.RefreshToken) (*userauth.TokenPair, error) {
	return nil, userauth.ErrTheftDetected
}

func (f *fakeEngine) SignOut(_ context.Context, cmd userauth.SignOut) error {
	f.signedOut = append(f.signedOut, cmd.UserID+"/"+cmd.SessionID)
	return nil
}

func (f *fakeEngine) SignOutAll(context.Context, userauth.SignOutAll) (int, error) { return 3, nil }

func (f *fakeEngine) ActiveSessions(context.Context, string) ([]userauth.SessionInfo, error) {
	return []userauth.SessionInfo{{SessionID: "s1"}, {SessionID: "s2"}}, nil
}

func (f *fakeEngine) RequestPasswordReset(context.Context, userauth.RequestPasswordReset) (*userauth.MessageResult, error) {
	return &userauth.MessageResult{Message: "sent"}, nil
}

func (f *fakeEngine) ConfirmPasswordReset(context.Context, userauth.ConfirmPasswordReset) (*userauth.MessageResult, error) {
	return nil, userauth.ErrTokenExpired
}

func (f *fakeEngine) ChangePassword(context.Context, userauth.ChangePassword) error { return nil }

func (f *fakeEngine) Message(_ context.Context, err error) string {
	return "msg: " + userauth.MessageKey(err)
}

func newTestServer(e *fakeEngine) http.Handler {
	return newServer(e, slog.New(slog.NewTextHandler(io.Discard, nil))).routes()
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSignInEndpoint(t *testing.T) {
	h := newTestServer(&fakeEngine{})

	rec := do(t, h, http.MethodPost, "/api/signin", `{"email":"user@example.com","password":"x"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var resp tokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken != "a-user@example.com" || resp.TwoFactorEnabled {
		t.Fatalf("resp = %+v", resp)
	}

	rec = do(t, h, http.MethodPost, "/api/signin", `{"email":`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/signin", `{"username":"x"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rec.Code)
	}
}

func TestErrorsAreTranslated(t *testing.T) {
	h := newTestServer(&fakeEngine{signInErr: userauth.ErrAccountLocked})

	rec := do(t, h, http.MethodPost, "/api/signin", `{"email":"a","password":"b"}`, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp errorResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error != "msg: "+userauth.MessageKey(userauth.ErrAccountLocked) {
		t.Fatalf("error = %q", resp.Error)
	}

	rec = do(t, h, http.MethodPost, "/api/token", `{"refreshToken":"r"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("theft status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/reset-password/confirm", `{"token":"t","newPassword":"p","userId":"u"}`, "")
	if rec.Code != http.StatusGone {
		t.Fatalf("expired token status = %d", rec.Code)
	}
}

func TestSignedInEndpointsRequireToken(t *testing.T) {
	e := &fakeEngine{}
	h := newTestServer(e)

	if rec := do(t, h, http.MethodGet, "/api/sessions", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/sessions", "", "bad"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/sessions", "", "good")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sessions []sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 2 || !sessions[0].Current || sessions[1].Current {
		t.Fatalf("sessions = %+v", sessions)
	}

	if rec := do(t, h, http.MethodPost, "/api/signout", "", "good"); rec.Code != http.StatusNoContent {
		t.Fatalf("signout status = %d", rec.Code)
	}
	if len(e.signedOut) != 1 || e.signedOut[0] != "u1/s1" {
		t.Fatalf("signed out = %v", e.signedOut)
	}

	if rec := do(t, h, http.MethodPost, "/api/2fa/disable", `{"twoFactorCode":"123456"}`, "good"); rec.Code != http.StatusConflict {
		t.Fatalf("disable status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(&fakeEngine{}), http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "userauth_sign_in_success_total 2") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{userauth.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("%w: too short", userauth.ErrPasswordPolicy), http.StatusBadRequest},
		{userauth.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{userauth.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
