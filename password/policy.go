package password

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

// ErrPolicy is wrapped by every Policy violation.
var ErrPolicy = errors.New("password: policy violation")

var (
	ErrTooShort    = policyError("password is too short")
	ErrTooLong     = policyError("password is too long")
	ErrNoDigit     = policyError("password must contain a digit")
	ErrNoUppercase = policyError("password must contain an uppercase letter")
)

type policyErr struct{ msg string }

func policyError(msg string) error { return &policyErr{msg: msg} }
func (e *policyErr) Error() string { return e.msg }
func (e *policyErr) Unwrap() error { return ErrPolicy }

// Policy describes the strength rules for new passwords. Length is counted in
// runes.
type Policy struct {
	MinLength    int  `env:"MIN_LENGTH"`
	MaxLength    int  `env:"MAX_LENGTH"`
	RequireDigit bool `env:"REQUIRE_DIGIT"`
	RequireUpper bool `env:"REQUIRE_UPPER"`
}

// DefaultPolicy matches the user-service registration rules.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, MaxLength: 64, RequireDigit: true, RequireUpper: true}
}

// Check returns the first rule plain violates, or nil.
func (p Policy) Check(plain string) error {
	n := utf8.RuneCountInString(plain)
	if n < p.MinLength {
		return ErrTooShort
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return ErrTooLong
	}

	var digit, upper bool
	for _, r := range plain {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsUpper(r):
			upper = true
		}
	}
	if p.RequireDigit && !digit {
		return ErrNoDigit
	}
	if p.RequireUpper && !upper {
		return ErrNoUppercase
	}
	return nil
}
