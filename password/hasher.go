package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes caps the input fed to the KDF.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrMalformedHash is returned for stored hashes in an unknown format.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrPasswordTooLong is returned before hashing oversized input.
	ErrPasswordTooLong = errors.New("password: input too long")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory           uint32 `env:"MEMORY_KB"`
	Time             uint32 `env:"TIME"`
	Parallelism      uint8  `env:"PARALLELISM"`
	SaltLength       uint32 `env:"SALT_LENGTH"`
	KeyLength        uint32 `env:"KEY_LENGTH"`
	MaxPasswordBytes int    `env:"MAX_BYTES"`
}

// DefaultConfig returns the production Argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Hasher produces Argon2id hashes and verifies Argon2id or bcrypt hashes.
// It is safe for concurrent use.
type Hasher struct {
	config Config
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// NewHasher validates cfg.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg}, nil
}

// Hash returns a PHC-encoded Argon2id hash of plain. The raw bytes are
// hashed as given, without Unicode normalization.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("password: empty input")
	}
	if len(plain) > h.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plain), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches encoded. A mismatch is (false, nil);
// an unreadable hash is an error.
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	if len(plain) > h.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}

	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
	}

	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(plain), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))
	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encoded should be replaced by a fresh Hash.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	return h.config.Memory > parsed.memory ||
		h.config.Time > parsed.time ||
		h.config.Parallelism > parsed.parallelism ||
		h.config.KeyLength != uint32(len(parsed.hash)), nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, ErrMalformedHash
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	out := &phc{}
	if err := parseParams(parts[3], out); err != nil {
		return nil, err
	}

	out.salt, err = decodeSegment(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	out.hash, err = decodeSegment(parts[5])
	if err != nil || len(out.hash) == 0 {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}

	return out, nil
}

// decodeSegment accepts both padded and unpadded base64.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func parseParams(part string, out *phc) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return fmt.Errorf("%w: parameters", ErrMalformedHash)
	}

	var seen int
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: parameters", ErrMalformedHash)
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return fmt.Errorf("%w: memory", ErrMalformedHash)
			}
			out.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minTimeCost) {
				return fmt.Errorf("%w: time", ErrMalformedHash)
			}
			out.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < uint64(minParallelism) {
				return fmt.Errorf("%w: parallelism", ErrMalformedHash)
			}
			out.parallelism = uint8(n)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, k)
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}

	return nil
}

// Validate checks the cost floor.
func (c Config) Validate() error {
	if c.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if c.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if c.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if c.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if c.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if c.MaxPasswordBytes < 0 {
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}
