package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "recon.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 5, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 15, cfg.Queue.ProcessingTimeoutMins)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 3, cfg.Match.WindowDays)
	assert.Equal(t, int64(50), cfg.Match.AmountToleranceCents)
	assert.Equal(t, 40, cfg.Match.PenaltyNoMatch)
	assert.Equal(t, 30, cfg.Match.PenaltyReceiptMismatch)
	assert.Equal(t, 25, cfg.Match.PenaltyMissingReceipt)
	assert.Equal(t, 95, cfg.Match.AutoPostThreshold)
	assert.Contains(t, cfg.Match.CostOfSaleCategories, "Venue Rental")
	assert.Contains(t, cfg.Match.HomeJurisdictions, "CA")
	assert.Equal(t, 5, cfg.Orphans.AgeDays)
	assert.Equal(t, 20, cfg.Orphans.BatchSize)
	assert.Equal(t, "receipts", cfg.Receipts.Dir)
	assert.False(t, cfg.Anthropic.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	content := `
store:
  driver: postgres
  database_url: postgres://localhost/recon
queue:
  max_concurrent: 8
match:
  auto_post_threshold: 90
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/recon", cfg.Store.DatabaseURL)
	assert.Equal(t, 8, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 90, cfg.Match.AutoPostThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 15, cfg.Queue.ProcessingTimeoutMins)
	assert.Equal(t, 3, cfg.Match.WindowDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chtemp(t)

	content := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644))

	t.Setenv("RECON_STORE_DRIVER", "postgres")
	t.Setenv("RECON_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("RECON_QUEUE_MAX_CONCURRENT", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Queue.MaxConcurrent)
}

func TestYAMLRoundTrip(t *testing.T) {
	dir := chtemp(t)

	want, err := Load()
	require.NoError(t, err)
	want.Store.Driver = "postgres"
	want.Store.DatabaseURL = "postgres://localhost/recon"
	want.Queue.MaxConcurrent = 7
	want.Match.PenaltyNoMatch = 35

	out, err := yaml.Marshal(want)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), out, 0644))

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "recon.db"
	cfg.Queue.MaxConcurrent = 5
	cfg.Match.AutoPostThreshold = 95
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
	assert.NoError(t, validDefaults().Validate("process"))
	assert.NoError(t, validDefaults().Validate("import"))
}

func TestValidateMissingDatabaseURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("process")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateBadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("process")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Queue.MaxConcurrent = 0
	assert.Error(t, cfg.Validate("process"))

	cfg.Queue.MaxConcurrent = 51
	assert.Error(t, cfg.Validate("process"))

	cfg.Queue.MaxConcurrent = 50
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidateServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateAnthropicKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Enabled = true

	err := cfg.Validate("process")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
