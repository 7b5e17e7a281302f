package session

// Session is the server-side record for one signed-in device.
//
// A session is created at sign-in (or at two-factor completion) and is never
// resurrected once revoked. Revoked sessions stay readable until their TTL
// runs out so late refresh attempts can be classified.
type Session struct {
	SessionID string
	UserID    string

	IP        string
	UserAgent string

	TwoFactorUsed bool
	RememberMe    bool

	Revoked      bool
	RevokeReason string
	RevokedAt    int64

	CreatedAt int64
	ExpiresAt int64
}

// Active reports whether the session is usable at unix time now.
func (s *Session) Active(now int64) bool {
	return s != nil && !s.Revoked && now < s.ExpiresAt
}
