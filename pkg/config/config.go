package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port           string
	Env            string
	AllowedOrigins []string
	AdminToken     string

	// Storage configuration
	StorageDriver string
	DatabaseURL   string

	// Redis configuration (reference-data cache and ledger events)
	RedisURL      string
	RedisPassword string
	RedisEnabled  bool

	// Ledger configuration
	LockTimeout     time.Duration
	TxMaxAttempts   int
	WelcomeBonus    decimal.Decimal
	DefaultCurrency string

	// Reference data freshness
	ReferenceCacheTTL time.Duration
	PriceStaleAfter   time.Duration

	// Settlement configuration
	SweepInterval     time.Duration
	SweepBatchSize    int
	ReturnFactorMin   decimal.Decimal
	ReturnFactorMax   decimal.Decimal
	FixedReturnFactor *decimal.Decimal
}

// Load loads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	welcome, err := getEnvAsDecimal("WELCOME_BONUS", "500.00")
	if err != nil {
		return nil, err
	}
	factorMin, err := getEnvAsDecimal("RETURN_FACTOR_MIN", "0.80")
	if err != nil {
		return nil, err
	}
	factorMax, err := getEnvAsDecimal("RETURN_FACTOR_MAX", "1.20")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		AllowedOrigins:    getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		AdminToken:        getEnv("ADMIN_TOKEN", ""),
		StorageDriver:     getEnv("STORAGE_DRIVER", StoragePostgres),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisEnabled:      getEnvAsBool("REDIS_ENABLED", true),
		LockTimeout:       getEnvAsDuration("LOCK_TIMEOUT", 2*time.Second),
		TxMaxAttempts:     getEnvAsInt("TX_MAX_ATTEMPTS", 3),
		WelcomeBonus:      welcome,
		DefaultCurrency:   strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
		ReferenceCacheTTL: getEnvAsDuration("REFERENCE_CACHE_TTL", time.Minute),
		PriceStaleAfter:   getEnvAsDuration("PRICE_STALE_AFTER", 5*time.Minute),
		SweepInterval:     getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		SweepBatchSize:    getEnvAsInt("SWEEP_BATCH_SIZE", 100),
		ReturnFactorMin:   factorMin,
		ReturnFactorMax:   factorMax,
	}

	if v := os.Getenv("RETURN_FACTOR_FIXED"); v != "" {
		fixed, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("RETURN_FACTOR_FIXED is not a decimal: %w", err)
		}
		cfg.FixedReturnFactor = &fixed
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
		}
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("memory storage driver is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.IsProduction() && c.AdminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN is required in production")
	}

	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive")
	}

	if c.TxMaxAttempts < 1 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be at least 1")
	}

	if c.SweepBatchSize < 1 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be at least 1")
	}

	if c.WelcomeBonus.Sign() < 0 {
		return fmt.Errorf("WELCOME_BONUS cannot be negative")
	}

	if c.ReturnFactorMin.GreaterThan(c.ReturnFactorMax) {
		return fmt.Errorf("RETURN_FACTOR_MIN must not exceed RETURN_FACTOR_MAX")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a time.Duration ("90s", "5m")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	raw := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s is not a decimal: %w", key, err)
	}
	return d, nil
}
