package middleware

import (
	"net/http"
	"strings"
)

// DefaultCookieName is the access token cookie set by the user service.
const DefaultCookieName = "__Host-auth_token"

// ExtractToken returns the bearer token from the Authorization header or,
// failing that, from the named cookie. ok is false when neither carries a
// token; that is "not my request", not an authentication failure.
func ExtractToken(r *http.Request, cookieName string) (string, bool) {
	if r == nil {
		return "", false
	}
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	c, err := r.Cookie(cookieName)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return "", false
	}
	return strings.TrimSpace(c.Value), true
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
