package flows

import (
	"context"
	"errors"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/refresh"
	"github.com/VilnaCRM-Org/user-service-sub004/session"
	"github.com/google/uuid"
)

// DefaultRole is granted when a user record carries no roles.
const DefaultRole = "ROLE_USER"

// IssueDeps mints a session together with its first refresh token and an
// access token.
type IssueDeps struct {
	Sessions SessionStore
	Refresh  RefreshStore
	Access   AccessIssuer

	RefreshTTL    time.Duration
	RememberMeTTL time.Duration

	NewSessionID func() (string, error)
}

// Issued is the token pair handed to a freshly authenticated client.
type Issued struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

type issueRequest struct {
	user          UserRecord
	ip            string
	userAgent     string
	rememberMe    bool
	twoFactorUsed bool
}

func issueSession(ctx context.Context, deps IssueDeps, now time.Time, req issueRequest) (*Issued, error) {
	if deps.Sessions == nil || deps.Refresh == nil || deps.Access == nil {
		return nil, errors.New("issue dependencies not configured")
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = newUUID
	}

	ttl := deps.RefreshTTL
	if req.rememberMe && deps.RememberMeTTL > ttl {
		ttl = deps.RememberMeTTL
	}
	expiresAt := now.Add(ttl).Unix()

	sid, err := deps.NewSessionID()
	if err != nil {
		return nil, err
	}
	sess := &session.Session{
		SessionID:     sid,
		UserID:        req.user.ID,
		IP:            req.ip,
		UserAgent:     req.userAgent,
		TwoFactorUsed: req.twoFactorUsed,
		RememberMe:    req.rememberMe,
		CreatedAt:     now.Unix(),
		ExpiresAt:     expiresAt,
	}
	if err := deps.Sessions.Save(ctx, sess, ttl); err != nil {
		return nil, err
	}

	tokenID, err := refresh.NewTokenID()
	if err != nil {
		return nil, err
	}
	secret, err := refresh.NewSecret()
	if err != nil {
		return nil, err
	}
	if err := deps.Refresh.Issue(ctx, &refresh.Token{
		ID:         tokenID,
		SessionID:  sid,
		UserID:     req.user.ID,
		SecretHash: secret.Hash(),
		IssuedAt:   now.Unix(),
		ExpiresAt:  expiresAt,
	}, ttl); err != nil {
		return nil, err
	}
	refreshToken, err := refresh.Encode(tokenID, secret)
	if err != nil {
		return nil, err
	}

	access, err := deps.Access.CreateAccess(req.user.Email, sid, rolesOf(req.user), now)
	if err != nil {
		return nil, err
	}

	return &Issued{
		SessionID:    sid,
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func rolesOf(u UserRecord) []string {
	if len(u.Roles) == 0 {
		return []string{DefaultRole}
	}
	return u.Roles
}

func newUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
