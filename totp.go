package userauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// totpGenerator implements RFC 6238 codes for the configured digits, period
// and hash. It satisfies flows.TOTP.
type totpGenerator struct {
	issuer    string
	digits    int
	period    int64
	skew      int64
	algorithm string
}

func newTOTPGenerator(cfg TwoFactorConfig) *totpGenerator {
	alg := strings.ToUpper(cfg.Algorithm)
	if alg == "" {
		alg = "SHA1"
	}
	return &totpGenerator{
		issuer:    cfg.Issuer,
		digits:    cfg.Digits,
		period:    int64(cfg.Period),
		skew:      int64(cfg.Skew),
		algorithm: alg,
	}
}

func (g *totpGenerator) Digits() int { return g.digits }

func (g *totpGenerator) GenerateSecret() ([]byte, string, error) {
	if g == nil {
		return nil, "", ErrEngineNotReady
	}
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, totpEncoding.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI shown as a QR code.
func (g *totpGenerator) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(g.issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", g.issuer)
	v.Set("period", strconv.FormatInt(g.period, 10))
	v.Set("digits", strconv.Itoa(g.digits))
	v.Set("algorithm", g.algorithm)

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyCode checks code against every step within the skew window and
// returns the matching step. Malformed codes are a mismatch, not an error.
func (g *totpGenerator) VerifyCode(secret []byte, code string, now time.Time) (bool, int64, error) {
	if g == nil {
		return false, 0, ErrEngineNotReady
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != g.digits || !isDigits(trimmed) {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, errors.New("empty totp secret")
	}

	base := now.Unix() / g.period
	for d := -g.skew; d <= g.skew; d++ {
		step := base + d
		if step < 0 {
			continue
		}
		want, err := hotpCode(secret, step, g.digits, g.algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(trimmed)) == 1 {
			return true, step, nil
		}
	}
	return false, 0, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}
