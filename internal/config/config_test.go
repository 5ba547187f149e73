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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, float64(1000), cfg.Market.StartingBalance)
	assert.Equal(t, float64(100), cfg.Market.InitialLiquidity)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	assert.Equal(t, 60*time.Second, cfg.SweepInterval())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  rate_per_second: 2
  rate_burst: 4
auth:
  jwt_secret: "file-secret"
  token_ttl_hours: 1
market:
  starting_balance: 500
  initial_liquidity: 50
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, float64(2), cfg.Server.RatePerSecond)
	assert.Equal(t, 4, cfg.Server.RateBurst)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.TokenTTL())
	assert.Equal(t, float64(500), cfg.Market.StartingBalance)
	assert.Equal(t, float64(50), cfg.Market.InitialLiquidity)

	// Unset keys still get defaults.
	assert.NotEmpty(t, cfg.Database.URL)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
auth:
  jwt_secret: "file-secret"
`), 0o644))

	t.Setenv("FAIRWAY_ADDR", ":7070")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("DATABASE_URL", "postgres://env/override")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres://env/override", cfg.Database.URL)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
