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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "libraledger", cfg.App.Name)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.Registry.LoanPeriod)
	assert.Equal(t, 1.0, cfg.Registry.DailyFee)
	assert.Equal(t, 3, cfg.Registry.LowStockThreshold)
	assert.Equal(t, 5, cfg.Registry.TopLimit)
	assert.Equal(t, "memory", cfg.Journal.Driver)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_FileEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := []byte("registry:\n  daily_fee: 2.5\n  top_limit: 10\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LIBRALEDGER_SERVER_PORT=9090\n"), 0o600))
	t.Setenv("LIBRALEDGER_REGISTRY_TOP_LIMIT", "3")
	t.Cleanup(func() { os.Unsetenv("LIBRALEDGER_SERVER_PORT") })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.Registry.DailyFee)
	assert.Equal(t, 3, cfg.Registry.TopLimit, "environment overrides file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Registry: RegistryConfig{LoanPeriod: time.Hour, DailyFee: 1, TopLimit: 5},
			Journal:  JournalConfig{Driver: "memory"},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Registry.LoanPeriod = 0
	assert.ErrorContains(t, cfg.Validate(), "loan_period")

	cfg = valid()
	cfg.Registry.DailyFee = -1
	assert.ErrorContains(t, cfg.Validate(), "daily_fee")

	cfg = valid()
	cfg.Registry.TopLimit = -1
	assert.ErrorContains(t, cfg.Validate(), "top_limit")

	cfg = valid()
	cfg.Registry.TopLimit = 0
	assert.ErrorContains(t, cfg.Validate(), "top_limit")

	cfg = valid()
	cfg.Journal.Driver = "sqlite"
	assert.ErrorContains(t, cfg.Validate(), "unknown journal.driver")

	cfg = valid()
	cfg.Journal.Driver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "database_url")

	cfg = valid()
	cfg.Server.RateLimit = RateLimitConfig{Enabled: true}
	assert.ErrorContains(t, cfg.Validate(), "rate_limit")
}
