package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Empty variables count as unset.
	for _, k := range []string{"PORT", "REDIS_URL", "ACCESS_TTL", "TOTP_DIGITS", "TOTP_PERIOD", "CHALLENGE_TTL", "MFA_MAX_ATTEMPTS", "CONFIG_FILE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisURL)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 6, cfg.TOTPDigits)
	assert.Equal(t, uint(30), cfg.TOTPPeriod)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PORT: \"9000\"\nTOTP_ISSUER: FromFile\nTOTP_DIGITS: 8\n"), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("CHALLENGE_TTL", "2m")
	t.Setenv("MFA_MAX_ATTEMPTS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "FromFile", cfg.TOTPIssuer)
	assert.Equal(t, 8, cfg.TOTPDigits)
	assert.Equal(t, 2*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"REDIS_URL": "cache:6379"}`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", cfg.RedisURL)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("PORT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoad_UnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PORT: [unterminated\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "error while reading config file")
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("TOTP_DIGITS", "7")
	_, err := Load("")
	assert.ErrorContains(t, err, "TOTP_DIGITS")
}
