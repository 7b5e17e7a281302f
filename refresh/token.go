package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	tokenIDSize  = 16
	secretSize   = 32
	tokenRawSize = tokenIDSize + secretSize
)

// ErrMalformedToken is returned when a presented refresh token cannot be decoded.
var ErrMalformedToken = errors.New("malformed refresh token")

// Secret is the random half of a refresh token.
type Secret [secretSize]byte

// NewSecret reads a fresh secret from crypto/rand.
func NewSecret() (Secret, error) {
	var secret Secret
	_, err := rand.Read(secret[:])
	return secret, err
}

// Hash returns the digest persisted in place of the secret.
func (s Secret) Hash() [32]byte {
	return sha256.Sum256(s[:])
}

// NewTokenID returns a random token identifier.
func NewTokenID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Encode renders the wire form of a refresh token.
func Encode(tokenID string, secret Secret) (string, error) {
	id, err := uuid.Parse(tokenID)
	if err != nil {
		return "", err
	}

	var raw [tokenRawSize]byte
	copy(raw[:tokenIDSize], id[:])
	copy(raw[tokenIDSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Decode splits a wire token into its ID and secret.
func Decode(token string) (string, Secret, error) {
	var secret Secret

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenRawSize {
		return "", secret, ErrMalformedToken
	}

	id, err := uuid.FromBytes(raw[:tokenIDSize])
	if err != nil {
		return "", secret, ErrMalformedToken
	}
	copy(secret[:], raw[tokenIDSize:])

	return id.String(), secret, nil
}
