package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	userauth "github.com/VilnaCRM-Org/user-service-sub004"
)

// Authenticator is implemented by *userauth.Engine.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (userauth.Identity, error)
}

// Options configures Guard.
type Options struct {
	// CookieName overrides DefaultCookieName.
	CookieName string
	// Fallback serves requests that carry no token. When nil they are
	// answered with 401.
	Fallback http.Handler
}

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by Guard.
func IdentityFromContext(ctx context.Context) (userauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(userauth.Identity)
	return id, ok
}

// WithIdentity stores id in ctx. Exposed for handler tests.
func WithIdentity(ctx context.Context, id userauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// Guard authenticates every request before calling next. Client IP, user
// agent and Accept-Language are attached to the context for the Engine.
func Guard(auth Authenticator, opts Options) func(http.Handler) http.Handler {
	return guard(auth, opts, nil)
}

// RequireUser is Guard restricted to end users.
func RequireUser(auth Authenticator, opts Options) func(http.Handler) http.Handler {
	return guard(auth, opts, func(id userauth.Identity) bool {
		_, ok := id.(userauth.DomainUser)
		return ok
	})
}

// RequireService is Guard restricted to service principals.
func RequireService(auth Authenticator, opts Options) func(http.Handler) http.Handler {
	return guard(auth, opts, func(id userauth.Identity) bool {
		_, ok := id.(userauth.ServicePrincipal)
		return ok
	})
}

func guard(auth Authenticator, opts Options, admit func(userauth.Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := RequestContext(r)
			r = r.WithContext(ctx)

			token, ok := ExtractToken(r, opts.CookieName)
			if !ok {
				if opts.Fallback != nil {
					opts.Fallback.ServeHTTP(w, r)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := auth.Authenticate(ctx, token)
			if err != nil {
				if errors.Is(err, userauth.ErrBackendUnavailable) || errors.Is(err, userauth.ErrEngineNotReady) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if admit != nil && !admit(id) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

// RequestContext attaches the client IP, user agent and Accept-Language of
// r to its context.
func RequestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if ip := clientIP(r); ip != "" {
		ctx = userauth.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = userauth.WithUserAgent(ctx, ua)
	}
	if lang := r.Header.Get("Accept-Language"); lang != "" {
		ctx = userauth.WithLocale(ctx, lang)
	}
	return ctx
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
