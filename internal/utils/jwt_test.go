package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", "alice", RoleUser, time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.Exp, 5*time.Second)

	sub, role, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
	assert.Equal(t, RoleUser, role)
}

func TestParseAccessTokenRejects(t *testing.T) {
	tok, err := NewAccessToken("secret", "admin", RoleAdmin, time.Minute)
	require.NoError(t, err)
	expired, err := NewAccessToken("secret", "admin", RoleAdmin, -time.Minute)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"wrong secret": tok.Token,
		"expired":      expired.Token,
		"garbage":      "not.a.token",
	} {
		secret := "secret"
		if name == "wrong secret" {
			secret = "other"
		}
		_, _, err := ParseAccessToken(secret, raw)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}
