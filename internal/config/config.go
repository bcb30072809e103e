// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "LIBRALEDGER"

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"` // development, staging, production
}

type ServerConfig struct {
	Port            string          `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	CORSOrigins     []string        `mapstructure:"cors_origins"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"` // mutations per second per client
	Burst   int     `mapstructure:"burst"`
}

type RegistryConfig struct {
	LoanPeriod        time.Duration `mapstructure:"loan_period"`
	DailyFee          float64       `mapstructure:"daily_fee"`
	LowStockThreshold int           `mapstructure:"low_stock_threshold"`
	TopLimit          int           `mapstructure:"top_limit"`
}

type JournalConfig struct {
	Driver         string        `mapstructure:"driver"` // memory, postgres
	DatabaseURL    string        `mapstructure:"database_url"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
	BreakerTrips   uint32        `mapstructure:"breaker_trips"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Load reads .env (if present), then config.yaml (if present), then
// LIBRALEDGER_* environment variables, each overriding the previous.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the registry cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Registry.LoanPeriod <= 0 {
		errs = append(errs, fmt.Errorf("registry.loan_period must be positive, got %s", c.Registry.LoanPeriod))
	}
	if c.Registry.DailyFee < 0 {
		errs = append(errs, fmt.Errorf("registry.daily_fee cannot be negative, got %g", c.Registry.DailyFee))
	}
	if c.Registry.LowStockThreshold < 0 {
		errs = append(errs, fmt.Errorf("registry.low_stock_threshold cannot be negative, got %d", c.Registry.LowStockThreshold))
	}
	if c.Registry.TopLimit <= 0 {
		errs = append(errs, fmt.Errorf("registry.top_limit must be positive, got %d", c.Registry.TopLimit))
	}
	switch c.Journal.Driver {
	case "memory":
	case "postgres":
		if c.Journal.DatabaseURL == "" {
			errs = append(errs, errors.New("journal.database_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown journal.driver %q", c.Journal.Driver))
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.Rate <= 0 || c.Server.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("server.rate_limit rate and burst must be positive when enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "libraledger")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.rate", 20)
	v.SetDefault("server.rate_limit.burst", 40)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("registry.loan_period", "168h")
	v.SetDefault("registry.daily_fee", 1.0)
	v.SetDefault("registry.low_stock_threshold", 3)
	v.SetDefault("registry.top_limit", 5)

	v.SetDefault("journal.driver", "memory")
	v.SetDefault("journal.database_url", "")
	v.SetDefault("journal.breaker_timeout", "30s")
	v.SetDefault("journal.breaker_trips", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "libraledger")
}
