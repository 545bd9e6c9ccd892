package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
database:
  driver: sqlite
  dsn: "file:royalty.db"
auth:
  jwt_secret: "0123456789abcdef0123"
royalty:
  settlement_currency: eur
  default_timezone: Africa/Accra
  workers: 4
  batch_size: 100
  default_admin_fee_percent: "12.5"
storage:
  backend: local
  local_root: /tmp/reports
lock:
  backend: memory
schedule:
  enabled: true
  daily_at: "03:30"
`

func TestParseAppliesDefaultsAndNormalizes(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "EUR", cfg.Royalty.SettlementCurrency)
	assert.Equal(t, "12.5", cfg.Royalty.DefaultAdminFeePercent.String())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "Africa/Accra", cfg.Location().String())
	assert.True(t, cfg.Schedule.Enabled)
}

func TestParseRejectsMissingSecret(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: sqlite\n  dsn: x\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseRejectsGCSWithoutBucket(t *testing.T) {
	data := sampleYAML + "\n"
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)
	cfg.Storage.Backend = "gcs"
	require.ErrorIs(t, cfg.finalize(), ErrInvalidConfig)
}

func TestParseRejectsFeeOutOfRange(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	cfg.Royalty.DefaultAdminFee = "120"
	require.ErrorIs(t, cfg.finalize(), ErrInvalidConfig)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "royalty.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	t.Setenv("ROYALTY_CONFIG", path)
	t.Setenv("CALC_WORKERS", "16")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Royalty.Workers)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.Equal(t, "localhost:6379", cfg.Lock.RedisAddr)
}
