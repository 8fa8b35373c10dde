package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	StoreDriver           string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL              string        `mapstructure:"REDIS_URL"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	Currency              string        `mapstructure:"CURRENCY"`
	PlanCatalogFile       string        `mapstructure:"PLAN_CATALOG_FILE"`
	PharmacyTransmitDelay time.Duration `mapstructure:"PHARMACY_TRANSMIT_DELAY"`
	PharmacyFillDelay     time.Duration `mapstructure:"PHARMACY_FILL_DELAY"`
	ReconcileSchedule     string        `mapstructure:"RECONCILE_SCHEDULE"`
	InvoiceDueDays        int           `mapstructure:"INVOICE_DUE_DAYS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("PLAN_CATALOG_FILE", "./plans.yaml")
	v.SetDefault("PHARMACY_TRANSMIT_DELAY", "5s")
	v.SetDefault("PHARMACY_FILL_DELAY", "10s")
	v.SetDefault("RECONCILE_SCHEDULE", "@every 5m")
	v.SetDefault("INVOICE_DUE_DAYS", 7)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "CORS_ORIGINS", "CURRENCY", "PLAN_CATALOG_FILE",
		"PHARMACY_TRANSMIT_DELAY", "PHARMACY_FILL_DELAY", "RECONCILE_SCHEDULE",
		"INVOICE_DUE_DAYS",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether records are persisted in PostgreSQL rather
// than the in-process memory store.
func (c *Config) UsesPostgres() bool {
	return c.StoreDriver == "postgres"
}

// Validate checks that the configuration is coherent. The memory driver is
// refused outside development because scheduled advances and records would
// not survive a restart.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is \"postgres\"")
		}
	case "memory":
		if !c.IsDev() {
			return fmt.Errorf("STORE_DRIVER \"memory\" is only allowed when ENV=development")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be \"postgres\" or \"memory\", got %q", c.StoreDriver)
	}

	if c.PharmacyTransmitDelay <= 0 {
		return fmt.Errorf("PHARMACY_TRANSMIT_DELAY must be positive, got %s", c.PharmacyTransmitDelay)
	}
	if c.PharmacyFillDelay <= 0 {
		return fmt.Errorf("PHARMACY_FILL_DELAY must be positive, got %s", c.PharmacyFillDelay)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter ISO code, got %q", c.Currency)
	}
	if c.InvoiceDueDays < 0 {
		return fmt.Errorf("INVOICE_DUE_DAYS must not be negative")
	}
	return nil
}
