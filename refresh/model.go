package refresh

// Token is the persisted state of one refresh token in a rotation chain.
type Token struct {
	ID        string
	SessionID string
	UserID    string

	SecretHash [32]byte

	IssuedAt  int64
	ExpiresAt int64

	Used    bool
	UsedAt  int64
	Revoked bool

	Predecessor string
	Successor   string
}

// RedeemStatus is the outcome of [Store.Redeem].
type RedeemStatus int

const (
	// RedeemNotFound means no token exists for the ID, or the secret did not match.
	RedeemNotFound RedeemStatus = iota
	// RedeemUsed means the token was already redeemed.
	RedeemUsed
	// RedeemRevoked means the token's chain was revoked.
	RedeemRevoked
	// RedeemExpired means the chain's absolute lifetime is over.
	RedeemExpired
	// RedeemRotated means the token was marked used and its successor stored.
	RedeemRotated
)

func (s RedeemStatus) String() string {
	switch s {
	case RedeemNotFound:
		return "not_found"
	case RedeemUsed:
		return "used"
	case RedeemRevoked:
		return "revoked"
	case RedeemExpired:
		return "expired"
	case RedeemRotated:
		return "rotated"
	default:
		return "unknown"
	}
}

// RedeemResult reports a redemption outcome together with the chain owner,
// which is known for every status except [RedeemNotFound].
type RedeemResult struct {
	Status    RedeemStatus
	SessionID string
	UserID    string
	ExpiresAt int64
}
