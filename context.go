package userauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type localeContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Commands that carry
// their own IP field take precedence.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithLocale attaches a BCP 47 language tag ("uk", "en-GB") used to
// translate user-facing messages.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeContextKey{}, locale)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func localeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	locale, _ := ctx.Value(localeContextKey{}).(string)
	return locale
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
