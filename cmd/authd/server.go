package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	userauth "github.com/VilnaCRM-Org/user-service-sub004"
	"github.com/VilnaCRM-Org/user-service-sub004/metrics/export/prometheus"
	"github.com/VilnaCRM-Org/user-service-sub004/middleware"
)

// engine is the part of *userauth.Engine the HTTP layer calls.
type engine interface {
	middleware.Authenticator
	prometheus.MetricsSource

	SignIn(ctx context.Context, cmd userauth.SignIn) (*userauth.SignInResult, error)
	CompleteTwoFactor(ctx context.Context, cmd userauth.CompleteTwoFactor) (*userauth.TokenPair, error)
	SetupTwoFactor(ctx context.Context, cmd userauth.SetupTwoFactor) (*userauth.TwoFactorSetup, error)
	ConfirmTwoFactor(ctx context.Context, cmd userauth.ConfirmTwoFactor) (*userauth.RecoveryCodes, error)
	DisableTwoFactor(ctx context.Context, cmd userauth.DisableTwoFactor) error
	RegenerateRecoveryCodes(ctx context.Context, cmd userauth.RegenerateRecoveryCodes) (*userauth.RecoveryCodes, error)
	RefreshToken(ctx context.Context, cmd userauth.RefreshToken) (*userauth.TokenPair, error)
	SignOut(ctx context.Context, cmd userauth.SignOut) error
	SignOutAll(ctx context.Context, cmd userauth.SignOutAll) (int, error)
	ActiveSessions(ctx context.Context, userID string) ([]userauth.SessionInfo, error)
	RequestPasswordReset(ctx context.Context, cmd userauth.RequestPasswordReset) (*userauth.MessageResult, error)
	ConfirmPasswordReset(ctx context.Context, cmd userauth.ConfirmPasswordReset) (*userauth.MessageResult, error)
	ChangePassword(ctx context.Context, cmd userauth.ChangePassword) error
	Message(ctx context.Context, err error) string
}

type server struct {
	engine engine
	logger *slog.Logger
}

func newServer(e engine, logger *slog.Logger) *server {
	return &server{engine: e, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	user := middleware.RequireUser(s.engine, middleware.Options{})

	mux.HandleFunc("POST /api/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/signin/2fa", s.handleCompleteTwoFactor)
	mux.HandleFunc("POST /api/token", s.handleRefresh)
	mux.HandleFunc("POST /api/reset-password", s.handleRequestReset)
	mux.HandleFunc("POST /api/reset-password/confirm", s.handleConfirmReset)

	mux.Handle("POST /api/signout", user(http.HandlerFunc(s.handleSignOut)))
	mux.Handle("POST /api/signout/all", user(http.HandlerFunc(s.handleSignOutAll)))
	mux.Handle("GET /api/sessions", user(http.HandlerFunc(s.handleSessions)))
	mux.Handle("POST /api/password", user(http.HandlerFunc(s.handleChangePassword)))
	mux.Handle("POST /api/2fa/setup", user(http.HandlerFunc(s.handleSetupTwoFactor)))
	mux.Handle("POST /api/2fa/confirm", user(http.HandlerFunc(s.handleConfirmTwoFactor)))
	mux.Handle("POST /api/2fa/disable", user(http.HandlerFunc(s.handleDisableTwoFactor)))
	mux.Handle("POST /api/2fa/recovery-codes", user(http.HandlerFunc(s.handleRecoveryCodes)))

	mux.Handle("GET /metrics", prometheus.NewExporter(s.engine).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

/*
====================================
PUBLIC ENDPOINTS
====================================
*/

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type tokenResponse struct {
	TwoFactorEnabled bool      `json:"2faEnabled"`
	PendingSessionID string    `json:"pendingSessionId,omitempty"`
	AccessToken      string    `json:"accessToken,omitempty"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	ExpiresAt        time.Time `json:"expiresAt,omitzero"`
}

func (s *server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := middleware.RequestContext(r)
	res, err := s.engine.SignIn(ctx, userauth.SignIn{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		TwoFactorEnabled: res.TwoFactorEnabled,
		PendingSessionID: res.PendingSessionID,
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		ExpiresAt:        res.ExpiresAt,
	})
}

type completeTwoFactorRequest struct {
	PendingSessionID string `json:"pendingSessionId"`
	Code             string `json:"twoFactorCode"`
}

func (s *server) handleCompleteTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req completeTwoFactorRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := middleware.RequestContext(r)
	pair, err := s.engine.CompleteTwoFactor(ctx, userauth.CompleteTwoFactor{
		PendingSessionID: req.PendingSessionID,
		Code:             req.Code,
	})
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, pairResponse(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := middleware.RequestContext(r)
	pair, err := s.engine.RefreshToken(ctx, userauth.RefreshToken{RefreshToken: req.RefreshToken})
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, pairResponse(pair))
}

type resetRequest struct {
	Email string `json:"email"`
}

func (s *server) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := middleware.RequestContext(r)
	res, err := s.engine.RequestPasswordReset(ctx, userauth.RequestPasswordReset{Email: req.Email})
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: res.Message})
}

type confirmResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
	UserID      string `json:"userId"`
}

func (s *server) handleConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := middleware.RequestContext(r)
	res, err := s.engine.ConfirmPasswordReset(ctx, userauth.ConfirmPasswordReset{
		Token:       req.Token,
		NewPassword: req.NewPassword,
		UserID:      req.UserID,
	})
	if err != nil {
		s.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: res.Message})
}

/*
====================================
SIGNED-IN ENDPOINTS
====================================
*/

func currentUser(r *http.Request) userauth.DomainUser {
	id, _ := middleware.IdentityFromContext(r.Context())
	user, _ := id.(userauth.DomainUser)
	return user
}

func (s *server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	if err := s.engine.SignOut(r.Context(), userauth.SignOut{SessionID: u.SessionID, UserID: u.User.ID}); err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSignOutAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.SignOutAll(r.Context(), userauth.SignOutAll{UserID: currentUser(r).User.ID})
	if err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

type sessionResponse struct {
	SessionID     string    `json:"sessionId"`
	Current       bool      `json:"current"`
	IP            string    `json:"ip"`
	UserAgent     string    `json:"userAgent"`
	TwoFactorUsed bool      `json:"twoFactorUsed"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	list, err := s.engine.ActiveSessions(r.Context(), u.User.ID)
	if err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	out := make([]sessionResponse, 0, len(list))
	for _, si := range list {
		out = append(out, sessionResponse{
			SessionID:     si.SessionID,
			Current:       si.SessionID == u.SessionID,
			IP:            si.IP,
			UserAgent:     si.UserAgent,
			TwoFactorUsed: si.TwoFactorUsed,
			CreatedAt:     si.CreatedAt,
			ExpiresAt:     si.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	u := currentUser(r)
	if err := s.engine.ChangePassword(r.Context(), userauth.ChangePassword{
		UserID:           u.User.ID,
		OldPassword:      req.OldPassword,
		NewPassword:      req.NewPassword,
		CurrentSessionID: u.SessionID,
	}); err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	setup, err := s.engine.SetupTwoFactor(r.Context(), userauth.SetupTwoFactor{UserEmail: currentUser(r).User.Email})
	if err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"otpauthUri": setup.OTPAuthURI, "secret": setup.Secret})
}

type codeRequest struct {
	Code string `json:"twoFactorCode"`
}

func (s *server) handleConfirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	u := currentUser(r)
	codes, err := s.engine.ConfirmTwoFactor(r.Context(), userauth.ConfirmTwoFactor{
		UserEmail:        u.User.Email,
		Code:             req.Code,
		CurrentSessionID: u.SessionID,
	})
	if err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"recoveryCodes": codes.Codes})
}

func (s *server) handleDisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.DisableTwoFactor(r.Context(), userauth.DisableTwoFactor{
		UserEmail: currentUser(r).User.Email,
		Code:      req.Code,
	}); err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	codes, err := s.engine.RegenerateRecoveryCodes(r.Context(), userauth.RegenerateRecoveryCodes{
		UserEmail:        u.User.Email,
		CurrentSessionID: u.SessionID,
	})
	if err != nil {
		s.fail(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"recoveryCodes": codes.Codes})
}

/*
====================================
ENCODING
====================================
*/

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func pairResponse(p *userauth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt,
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: s.engine.Message(ctx, err)})
}

var errorStatus = []struct {
	err    error
	status int
}{
	{userauth.ErrInvalidCredentials, http.StatusUnauthorized},
	{userauth.ErrAuthenticationRequired, http.StatusUnauthorized},
	{userauth.ErrTheftDetected, http.StatusUnauthorized},
	{userauth.ErrTwoFactorInvalidCode, http.StatusUnauthorized},
	{userauth.ErrTwoFactorRejected, http.StatusUnauthorized},
	{userauth.ErrInvalidPassword, http.StatusBadRequest},
	{userauth.ErrPasswordPolicy, http.StatusBadRequest},
	{userauth.ErrTwoFactorNotEnabled, http.StatusConflict},
	{userauth.ErrTwoFactorAlreadyEnabled, http.StatusConflict},
	{userauth.ErrTwoFactorNotConfigured, http.StatusConflict},
	{userauth.ErrSessionNotFound, http.StatusNotFound},
	{userauth.ErrTokenNotFound, http.StatusNotFound},
	{userauth.ErrUserNotFound, http.StatusNotFound},
	{userauth.ErrTokenMismatch, http.StatusBadRequest},
	{userauth.ErrTokenAlreadyUsed, http.StatusGone},
	{userauth.ErrTokenExpired, http.StatusGone},
	{userauth.ErrAccountLocked, http.StatusTooManyRequests},
	{userauth.ErrRateLimitExceeded, http.StatusTooManyRequests},
	{userauth.ErrTwoFactorRateLimited, http.StatusTooManyRequests},
	{userauth.ErrBackendUnavailable, http.StatusServiceUnavailable},
	{userauth.ErrEngineNotReady, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, es := range errorStatus {
		if errors.Is(err, es.err) {
			return es.status
		}
	}
	return http.StatusInternalServerError
}
