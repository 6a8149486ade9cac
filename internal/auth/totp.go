// Package auth guards mutating commands with a time-based one-time password.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrMissingCode = errors.New("auth: one-time code required")
	ErrInvalidCode = errors.New("auth: invalid one-time code")
)

var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Guard checks TOTP codes against a shared secret. A Guard without a secret
// accepts everything.
type Guard struct {
	secret string
	now    func() time.Time
}

// NewGuard creates a guard for the base32 secret. An empty secret disables it.
func NewGuard(secret string) *Guard {
	return &Guard{secret: strings.TrimSpace(secret), now: time.Now}
}

// Enabled reports whether codes are checked.
func (g *Guard) Enabled() bool { return g != nil && g.secret != "" }

// Verify accepts the code for the current 30s step or its neighbours.
func (g *Guard) Verify(code string) error {
	if !g.Enabled() {
		return nil
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrMissingCode
	}
	ok, err := totp.ValidateCustom(code, g.secret, g.now(), validateOpts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// GenerateSecret creates a new secret and its otpauth:// URL for enrolment.
func GenerateSecret(issuer, account string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: account})
	if err != nil {
		return "", "", fmt.Errorf("auth: generate secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}
