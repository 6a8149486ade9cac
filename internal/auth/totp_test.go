package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6238 test secret ("12345678901234567890" in base32).
const secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGuard_Disabled(t *testing.T) {
	g := NewGuard("  ")
	assert.False(t, g.Enabled())
	assert.NoError(t, g.Verify(""))

	var nilGuard *Guard
	assert.NoError(t, nilGuard.Verify("x"))
}

func TestGuard_Verify(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 15, 0, time.UTC)
	g := NewGuard(secret)
	g.now = func() time.Time { return now }

	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)
	assert.NoError(t, g.Verify(code))

	prev, err := totp.GenerateCode(secret, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.NoError(t, g.Verify(prev), "one step of skew is allowed")

	old, err := totp.GenerateCode(secret, now.Add(-5*time.Minute))
	require.NoError(t, err)
	if old != code && old != prev {
		assert.True(t, errors.Is(g.Verify(old), ErrInvalidCode))
	}

	assert.ErrorIs(t, g.Verify(""), ErrMissingCode)
	assert.ErrorIs(t, g.Verify("12"), ErrInvalidCode)
}

func TestGenerateSecret(t *testing.T) {
	s, url, err := GenerateSecret("trading-simulator", "desk")
	require.NoError(t, err)
	assert.NotEmpty(t, s)
	assert.Contains(t, url, "otpauth://totp/")

	code, err := totp.GenerateCode(s, time.Now())
	require.NoError(t, err)
	assert.NoError(t, NewGuard(s).Verify(code))
}
