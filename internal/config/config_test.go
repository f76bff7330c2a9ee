package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func clearEnv(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "JWT_SECRET", "ENCRYPTION_KEY", "APP_ENV", "NODE_ENV", "DATABASE_DRIVER"} {
		t.Setenv(k, "")
	}
}

func TestLoadDevelopmentFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_DRIVER", DriverMemory)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.NotEmpty(t, cfg.JWT.Secret)
	assert.Len(t, cfg.EncryptionKeyBytes(), 32)
	assert.Len(t, cfg.Warnings, 2)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Security.MaxLoginAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Security.LockoutDuration)
	assert.Equal(t, 24*time.Hour, cfg.Security.SessionTTL)
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/dental")
	t.Setenv("NODE_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")

	t.Setenv("ENCRYPTION_KEY", testKey)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, "postgres://localhost/dental", cfg.Database.URL)
}

func TestAppEnvWinsOverNodeEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_DRIVER", DriverMemory)
	t.Setenv("APP_ENV", "staging")
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Env)
}

func TestValidateRejectsBadKeyAndBroker(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_DRIVER", DriverMemory)
	t.Setenv("ENCRYPTION_KEY", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")

	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("MESSAGING_BROKER", "carrier-pigeon")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestGDPRRetention(t *testing.T) {
	g := GDPRConfig{RetentionYears: 2}
	assert.Equal(t, 2*365*24*time.Hour, g.Retention())
}
