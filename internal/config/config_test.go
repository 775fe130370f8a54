package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-core/internal/config"
)

func setRequiredVars(t *testing.T) {
	t.Helper()
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("TOKEN_FINGERPRINT_SALT", "test-salt")
}

func TestNewRequiresSecrets(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")
	t.Setenv("TOKEN_FINGERPRINT_SALT", "")

	_, err := config.New()
	require.Error(t, err)

	t.Setenv("TOKEN_SECRET", "test-secret")
	_, err = config.New()
	require.Error(t, err) // salt still missing
}

func TestDefaults(t *testing.T) {
	setRequiredVars(t)

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "Auth Core", c.GetAppName())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, 15*time.Minute, c.GetAccessTTL())
	require.Equal(t, 7*24*time.Hour, c.GetRefreshTTL())
	require.Equal(t, 30*24*time.Hour, c.GetRememberRefreshTTL())
	require.Equal(t, 5*time.Minute, c.GetPermissionTTL())
	require.Equal(t, "localhost:6379", c.GetRedisAddr())
	require.False(t, c.DirectoryEnabled())
}

func TestEnvironmentOverrides(t *testing.T) {
	setRequiredVars(t)
	t.Setenv("APP_NAME", "Custom Auth")
	t.Setenv("TOKEN_ACCESS_TTL", "30m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LDAP_URL", "ldaps://directory.example.com")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "Custom Auth", c.GetAppName())
	require.Equal(t, 30*time.Minute, c.GetAccessTTL())
	require.Equal(t, 3, c.GetRedisDB())
	require.True(t, c.DirectoryEnabled())
	require.Equal(t, "ldaps://directory.example.com", c.GetLDAPURL())
	require.Equal(t, []byte("test-secret"), c.GetTokenSecret())
}

func TestInvalidDurationFallsBack(t *testing.T) {
	setRequiredVars(t)
	t.Setenv("TOKEN_ACCESS_TTL", "not-a-duration")

	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, c.GetAccessTTL())
}
