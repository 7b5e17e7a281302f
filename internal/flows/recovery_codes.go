package flows

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"strings"
)

// RecoveryCodeAlphabet omits characters that are easy to misread.
const RecoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewRecoveryCodes returns count formatted codes and the hashes to store.
func NewRecoveryCodes(userID string, count, length int, randomIndex func(int) (int, error)) ([]string, [][32]byte, error) {
	codes := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)
	for i := 0; i < count; i++ {
		raw, err := newRecoveryCode(length, randomIndex)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, FormatRecoveryCode(raw))
		hashes = append(hashes, RecoveryCodeHash(userID, raw))
	}
	return codes, hashes, nil
}

func newRecoveryCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(RecoveryCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(RecoveryCodeAlphabet[n])
	}
	return b.String(), nil
}

// FormatRecoveryCode splits a code in half with a dash for display.
func FormatRecoveryCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalRecoveryCode strips display formatting from user input.
func CanonicalRecoveryCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// RecoveryCodeHash binds a canonical code to its owner.
func RecoveryCodeHash(userID, canonical string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonical))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonical...)
	return sha256.Sum256(data)
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
