package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"ADDR", "DATABASE_URL", "JWT_SECRET", "APP_ENV", "LOG_LEVEL", "TOKEN_TTL"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Development())

	require.NoError(t, cfg.Validate())
	assert.Equal(t, devSecret, cfg.JWTSecret)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "devconnect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\ntoken_ttl: 2h\nlog_level: debug\njwt_secret: from-file\n"), 0o644))

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("APP_ENV", "Production")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestValidateNeedsSecretInProduction(t *testing.T) {
	cfg := Default()
	cfg.Env = "production"
	assert.Error(t, cfg.Validate())
}

func TestBadTTL(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN_TTL", "soon")
	_, err := Load("")
	assert.Error(t, err)
}
