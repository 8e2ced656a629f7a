package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SERVER_SYNC_SECRET", "fleet")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "vocab")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("NODE_ROLE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, RoleAuthoritative, cfg.Role)
	assert.True(t, cfg.IsAuthoritative())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.SyncTimeout)
	assert.Equal(t, 500, cfg.BatchChunkSize)
	assert.Equal(t, "/healthz", cfg.HealthPath)
}

func TestLoadReportsAllMissing(t *testing.T) {
	for _, k := range []string{"SERVER_SYNC_SECRET", "JWT_SECRET", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME"} {
		t.Setenv(k, "")
	}
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_SYNC_SECRET")
	assert.Contains(t, err.Error(), "DB_NAME")
}

func TestLoadDataNodeNeedsAuthoritativeURL(t *testing.T) {
	setRequired(t)
	t.Setenv("NODE_ROLE", "data")
	t.Setenv("AUTHORITATIVE_URL", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTHORITATIVE_URL")

	t.Setenv("AUTHORITATIVE_URL", "https://auth.example.org/")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.org", cfg.AuthoritativeURL)
}

func TestLoadRejectsUnknownRole(t *testing.T) {
	setRequired(t)
	t.Setenv("NODE_ROLE", "mirror")
	_, err := Load()
	assert.Error(t, err)
}

func TestRateLimitClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}

func TestLoadCORSOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.org, ,https://admin.example.org")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.org", "https://admin.example.org"}, cfg.CORSOrigins)
}
