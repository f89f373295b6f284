package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pesaprime/pkg/config"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "development")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ADMIN_TOKEN", "")
	t.Setenv("RETURN_FACTOR_FIXED", "")
}

// =============================================================================
// Load
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.StorageMemory, cfg.StorageDriver)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, 3, cfg.TxMaxAttempts)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.True(t, cfg.WelcomeBonus.Equal(decimal.RequireFromString("500")))
	assert.True(t, cfg.ReturnFactorMin.Equal(decimal.RequireFromString("0.8")))
	assert.True(t, cfg.ReturnFactorMax.Equal(decimal.RequireFromString("1.2")))
	assert.Nil(t, cfg.FixedReturnFactor)
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("DEFAULT_CURRENCY", "kes")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RETURN_FACTOR_FIXED", "1")
	t.Setenv("SWEEP_BATCH_SIZE", "25")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, "KES", cfg.DefaultCurrency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 25, cfg.SweepBatchSize)
	require.NotNil(t, cfg.FixedReturnFactor)
	assert.True(t, cfg.FixedReturnFactor.Equal(decimal.NewFromInt(1)))
}

func TestLoad_InvalidDecimal(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("WELCOME_BONUS", "lots")

	_, err := config.Load()
	assert.ErrorContains(t, err, "WELCOME_BONUS")
}

// =============================================================================
// Validate
// =============================================================================

func validConfig() *config.Config {
	return &config.Config{
		Env:             "development",
		StorageDriver:   config.StoragePostgres,
		DatabaseURL:     "postgres://localhost/pesaprime",
		LockTimeout:     time.Second,
		TxMaxAttempts:   3,
		SweepBatchSize:  100,
		WelcomeBonus:    decimal.NewFromInt(500),
		ReturnFactorMin: decimal.RequireFromString("0.8"),
		ReturnFactorMax: decimal.RequireFromString("1.2"),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"postgres without url", func(c *config.Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"unknown driver", func(c *config.Config) { c.StorageDriver = "sqlite" }, "STORAGE_DRIVER"},
		{"memory in production", func(c *config.Config) {
			c.Env = "production"
			c.StorageDriver = config.StorageMemory
			c.AdminToken = "secret"
		}, "memory storage"},
		{"production without admin token", func(c *config.Config) { c.Env = "production" }, "ADMIN_TOKEN"},
		{"zero lock timeout", func(c *config.Config) { c.LockTimeout = 0 }, "LOCK_TIMEOUT"},
		{"zero attempts", func(c *config.Config) { c.TxMaxAttempts = 0 }, "TX_MAX_ATTEMPTS"},
		{"zero batch", func(c *config.Config) { c.SweepBatchSize = 0 }, "SWEEP_BATCH_SIZE"},
		{"negative welcome bonus", func(c *config.Config) { c.WelcomeBonus = decimal.NewFromInt(-1) }, "WELCOME_BONUS"},
		{"inverted factor range", func(c *config.Config) { c.ReturnFactorMin = decimal.NewFromInt(2) }, "RETURN_FACTOR_MIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
