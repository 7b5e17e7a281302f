package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names an access-token signing algorithm.
type SigningMethod string

const (
	MethodRS256   SigningMethod = "rs256"
	MethodES256   SigningMethod = "es256"
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Config carries key material and token defaults. Keys are PEM encoded;
// ed25519 keys may also be given raw. For asymmetric methods PublicKey may be
// omitted when PrivateKey is set.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
}

// Manager signs access tokens and verifies access-token signatures.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// NewManager validates cfg and parses its key material once.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}
	var err error
	switch cfg.SigningMethod {
	case MethodRS256:
		m.method = jwt.SigningMethodRS256
		err = m.loadRSA()
	case MethodES256:
		m.method = jwt.SigningMethodES256
		err = m.loadEC()
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		err = m.loadEd()
	case MethodHS256:
		m.method = jwt.SigningMethodHS256
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
	default:
		return nil, errors.New("unsupported signing method")
	}
	if err != nil {
		return nil, err
	}
	if m.verifyKey == nil {
		return nil, fmt.Errorf("%s requires a public or private key", cfg.SigningMethod)
	}

	return m, nil
}

func (j *Manager) loadRSA() error {
	if len(j.config.PrivateKey) > 0 {
		key, err := jwt.ParseRSAPrivateKeyFromPEM(j.config.PrivateKey)
		if err != nil {
			return errors.New("invalid rsa private key")
		}
		j.signKey = key
		j.verifyKey = &key.PublicKey
	}
	if len(j.config.PublicKey) > 0 {
		key, err := jwt.ParseRSAPublicKeyFromPEM(j.config.PublicKey)
		if err != nil {
			return errors.New("invalid rsa public key")
		}
		j.verifyKey = key
	}
	return nil
}

func (j *Manager) loadEC() error {
	if len(j.config.PrivateKey) > 0 {
		key, err := jwt.ParseECPrivateKeyFromPEM(j.config.PrivateKey)
		if err != nil {
			return errors.New("invalid ecdsa private key")
		}
		j.signKey = key
		j.verifyKey = &key.PublicKey
	}
	if len(j.config.PublicKey) > 0 {
		key, err := jwt.ParseECPublicKeyFromPEM(j.config.PublicKey)
		if err != nil {
			return errors.New("invalid ecdsa public key")
		}
		j.verifyKey = key
	}
	return nil
}

func (j *Manager) loadEd() error {
	if len(j.config.PrivateKey) > 0 {
		key, err := parseEdPrivateKey(j.config.PrivateKey)
		if err != nil {
			return err
		}
		j.signKey = key
		j.verifyKey = key.Public()
	}
	if len(j.config.PublicKey) > 0 {
		key, err := parseEdPublicKey(j.config.PublicKey)
		if err != nil {
			return err
		}
		j.verifyKey = key
	}
	return nil
}

// Alg is the JOSE algorithm name written into token headers, e.g. "RS256".
func (j *Manager) Alg() string {
	return j.method.Alg()
}

// CanSign reports whether private key material is configured.
func (j *Manager) CanSign() bool {
	return j.signKey != nil
}

// CreateAccess signs an access token for subject bound to sessionID. All
// time claims are integer seconds.
func (j *Manager) CreateAccess(subject, sessionID string, roles []string, now time.Time) (string, error) {
	if j.signKey == nil {
		return "", errors.New("signing key not configured")
	}

	claims := jwt.MapClaims{
		"sub":   subject,
		"sid":   sessionID,
		"roles": append([]string(nil), roles...),
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   now.Add(j.config.AccessTTL).Unix(),
	}
	if j.config.Issuer != "" {
		claims["iss"] = j.config.Issuer
	}
	if j.config.Audience != "" {
		claims["aud"] = j.config.Audience
	}

	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	return token.SignedString(j.signKey)
}

// Decode verifies the token signature against the configured algorithm and
// key and returns the raw claim set. Numbers come back as json.Number.
// Registered claims are not validated here.
func (j *Manager) Decode(tokenStr string) (map[string]interface{}, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithJSONNumber(),
	)

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.verifyKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}

	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
