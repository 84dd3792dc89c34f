package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/database"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONFIG_FILE", "HTTP_ADDR", "DATABASE_URL", "DATABASE_MAX_CONNS", "DATABASE_TIMEZONE",
		"JWT_SECRET", "JWT_EXPIRES_IN", "BCRYPT_COST", "LOCKOUT_MAX_ATTEMPTS", "LOCKOUT_DURATION",
		"LOG_DEV", "LOG_LEVEL", "LOG_FILE", "LOG_MAX_AGE_DAYS", "AUTO_MIGRATE"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8431", cfg.HTTP.Addr)
	assert.Equal(t, database.DefaultDSN, cfg.Database.DSN)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 5, cfg.Auth.MaxFailedLogins)
	assert.Equal(t, 15*time.Minute, cfg.Auth.LockDuration)
	assert.Equal(t, 24*time.Hour, cfg.Token.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.AutoMigrate)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "service.yaml")
	yml := `
http:
  addr: 127.0.0.1:9000
database:
  url: postgres://market@db/market
  max_connections: 20
token:
  secret: from-file
  ttl: 2h
auth:
  bcrypt_cost: 10
  lock_duration: 30m
auto_migrate: true
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("LOCKOUT_MAX_ATTEMPTS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://market@db/market", cfg.Database.DSN)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, "from-file", cfg.Token.Secret)
	assert.Equal(t, 2*time.Hour, cfg.Token.TTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 3, cfg.Auth.MaxFailedLogins)
	assert.Equal(t, 30*time.Minute, cfg.Auth.LockDuration)
	assert.True(t, cfg.AutoMigrate)
}

func TestLoadSecret(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	assert.Error(t, err, "production without a secret")

	t.Setenv("LOG_DEV", "1")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Token.UsesDevSecret())
	assert.Equal(t, session.DevSecret, cfg.Token.Secret)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"BCRYPT_COST":          "99",
		"LOCKOUT_MAX_ATTEMPTS": "many",
		"LOCKOUT_DURATION":     "soon",
		"AUTO_MIGRATE":         "maybe",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("JWT_SECRET", "x")
			t.Setenv(key, val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestReadSkipsValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://ops@db/market")

	cfg, err := Read("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Token.Secret)
	assert.Equal(t, "postgres://ops@db/market", cfg.Database.DSN)
	assert.Error(t, cfg.Validate())
}
