package flows

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultServiceRole marks machine-to-machine callers.
const DefaultServiceRole = "ROLE_SERVICE"

// VerifyFailureKind classifies verification failures for logging. Every kind
// surfaces as the same authentication error.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureToken
	VerifyFailureClaims
	VerifyFailureLookup
	VerifyFailureSession
)

func (k VerifyFailureKind) String() string {
	switch k {
	case VerifyFailureNone:
		return "none"
	case VerifyFailureToken:
		return "token"
	case VerifyFailureClaims:
		return "claims"
	case VerifyFailureLookup:
		return "lookup"
	case VerifyFailureSession:
		return "session"
	default:
		return "unknown"
	}
}

// AccessClaims is the validated claim set of an access token.
type AccessClaims struct {
	Subject   string
	SessionID string
	Roles     []string
	Issuer    string
	Audience  []string
	NotBefore int64
	Expiry    int64
}

// VerifyResult is either a resolved caller or a classified failure.
type VerifyResult struct {
	Failure VerifyFailureKind
	Err     error
	Reason  string

	Claims  AccessClaims
	Service bool
	User    UserRecord
}

// Decoder verifies a token signature and returns the raw claims with
// numbers as json.Number.
type Decoder interface {
	Decode(token string) (map[string]interface{}, error)
}

type VerifyDeps struct {
	Decoder     Decoder
	Alg         string
	Issuer      string
	Audience    string
	ServiceRole string

	RequireActiveSession bool

	Users    Users
	Sessions SessionStore
	Hooks    Hooks
	Errors   Errors
}

// RunVerify validates a raw access token and resolves the caller.
func RunVerify(ctx context.Context, raw string, deps VerifyDeps) VerifyResult {
	deps.Hooks.normalize()
	if deps.Decoder == nil || deps.Users == nil || deps.Alg == "" {
		return VerifyResult{Failure: VerifyFailureToken, Err: deps.Errors.EngineNotReady, Reason: "not configured"}
	}
	if deps.ServiceRole == "" {
		deps.ServiceRole = DefaultServiceRole
	}

	if reason := checkShape(raw, deps.Alg); reason != "" {
		return VerifyResult{Failure: VerifyFailureToken, Err: deps.Errors.InvalidToken, Reason: reason}
	}

	payload, err := deps.Decoder.Decode(raw)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureToken, Err: deps.Errors.InvalidToken, Reason: err.Error()}
	}

	claims, reason := checkClaims(payload, deps.Issuer, deps.Audience, deps.Hooks.Now().Unix())
	if reason != "" {
		return VerifyResult{Failure: VerifyFailureClaims, Err: deps.Errors.InvalidClaims, Reason: reason}
	}

	if containsRole(claims.Roles, deps.ServiceRole) {
		return VerifyResult{Claims: claims, Service: true}
	}

	user, err := lookupSubject(ctx, deps.Users, claims.Subject)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureLookup, Err: deps.Errors.AuthenticationRequired, Reason: err.Error()}
	}

	if deps.RequireActiveSession {
		if deps.Sessions == nil {
			return VerifyResult{Failure: VerifyFailureSession, Err: deps.Errors.EngineNotReady, Reason: "session store not configured"}
		}
		sess, err := deps.Sessions.Get(ctx, claims.SessionID, deps.Hooks.Now())
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return VerifyResult{Failure: VerifyFailureSession, Err: deps.Errors.AuthenticationRequired, Reason: "session not found"}
			}
			return VerifyResult{Failure: VerifyFailureSession, Err: deps.Errors.BackendUnavailable, Reason: err.Error()}
		}
		if sess.UserID != user.ID || !sess.Active(deps.Hooks.Now().Unix()) {
			return VerifyResult{Failure: VerifyFailureSession, Err: deps.Errors.AuthenticationRequired, Reason: "session inactive"}
		}
	}

	return VerifyResult{Claims: claims, User: user}
}

// checkShape enforces <header>.<payload>.<signature> and the header alg.
func checkShape(raw, alg string) string {
	if strings.Count(raw, ".") != 2 {
		return "token must have three segments"
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return "empty token segment"
		}
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "header is not base64url"
	}
	var header map[string]interface{}
	if err := json.Unmarshal(headerJSON, &header); err != nil || header == nil {
		return "header is not a JSON object"
	}
	got, _ := header["alg"].(string)
	if got != alg {
		return "unexpected alg"
	}
	return ""
}

func checkClaims(payload map[string]interface{}, issuer, audience string, now int64) (AccessClaims, string) {
	var c AccessClaims

	if issuer != "" {
		iss, ok := payload["iss"].(string)
		if !ok || iss != issuer {
			return c, "issuer mismatch"
		}
		c.Issuer = iss
	}

	if audience != "" {
		aud, ok := audienceOf(payload["aud"])
		if !ok || !containsRole(aud, audience) {
			return c, "audience mismatch"
		}
		c.Audience = aud
	}

	nbf, ok := integerClaim(payload["nbf"])
	if !ok {
		return c, "nbf must be an integer"
	}
	exp, ok := integerClaim(payload["exp"])
	if !ok {
		return c, "exp must be an integer"
	}
	if now < nbf {
		return c, "token not yet valid"
	}
	if now >= exp {
		return c, "token expired"
	}
	c.NotBefore, c.Expiry = nbf, exp

	sub, ok := payload["sub"].(string)
	if !ok || sub == "" {
		return c, "sub must be a non-empty string"
	}
	sid, ok := payload["sid"].(string)
	if !ok || sid == "" {
		return c, "sid must be a non-empty string"
	}
	c.Subject, c.SessionID = sub, sid

	roles, ok := payload["roles"].([]interface{})
	if !ok || len(roles) == 0 {
		return c, "roles must be a non-empty list"
	}
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		role, ok := r.(string)
		if !ok || role == "" {
			return c, "roles must be non-empty strings"
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		c.Roles = append(c.Roles, role)
	}

	return c, ""
}

// audienceOf accepts a string or a list whose members are all non-empty
// strings.
func audienceOf(v interface{}) ([]string, bool) {
	switch aud := v.(type) {
	case string:
		return []string{aud}, true
	case []interface{}:
		out := make([]string, 0, len(aud))
		for _, a := range aud {
			s, ok := a.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func integerClaim(v interface{}) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

func containsRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// lookupSubject tries the subject as an email, then as a user ID when it has
// canonical UUID shape.
func lookupSubject(ctx context.Context, users Users, subject string) (UserRecord, error) {
	user, err := users.ByEmail(ctx, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNoUser) {
		return UserRecord{}, err
	}
	if !isCanonicalUUID(subject) {
		return UserRecord{}, ErrNoUser
	}
	return users.ByID(ctx, subject)
}

func isCanonicalUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

