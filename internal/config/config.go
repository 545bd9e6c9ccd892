package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("config: invalid")

// Config is the service configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Royalty  RoyaltyConfig  `yaml:"royalty"`
	Storage  StorageConfig  `yaml:"storage"`
	Lock     LockConfig     `yaml:"lock"`
	Schedule ScheduleConfig `yaml:"schedule"`
	LogLevel string         `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver  string `yaml:"driver" validate:"required,oneof=postgres sqlite"`
	DSN     string `yaml:"dsn" validate:"required"`
	Migrate bool   `yaml:"migrate"`
}

// HTTPConfig configures the admin API listener.
type HTTPConfig struct {
	Addr        string   `yaml:"addr" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" validate:"required,min=16"`
}

// RoyaltyConfig holds calculation settings.
type RoyaltyConfig struct {
	SettlementCurrency     string          `yaml:"settlement_currency" validate:"required,len=3"`
	DefaultTimezone        string          `yaml:"default_timezone" validate:"required"`
	Workers                int             `yaml:"workers" validate:"min=1,max=256"`
	BatchSize              int             `yaml:"batch_size" validate:"min=1"`
	DefaultAdminFeePercent decimal.Decimal `yaml:"-"`
	DefaultAdminFee        string          `yaml:"default_admin_fee_percent"`
	SenderPartyID          string          `yaml:"sender_party_id" validate:"required,max=32"`
	SenderName             string          `yaml:"sender_name" validate:"required"`
}

// StorageConfig selects where partner reports are written.
type StorageConfig struct {
	Backend         string `yaml:"backend" validate:"required,oneof=local gcs"`
	LocalRoot       string `yaml:"local_root" validate:"required_if=Backend local"`
	GCSBucket       string `yaml:"gcs_bucket" validate:"required_if=Backend gcs"`
	GCSPrefix       string `yaml:"gcs_prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// LockConfig selects the cycle lock backend.
type LockConfig struct {
	Backend   string        `yaml:"backend" validate:"required,oneof=memory redis"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	TTL       time.Duration `yaml:"ttl"`
}

// ScheduleConfig controls the pending-play scheduler.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	// DailyAt is HH:MM on the UTC clock.
	DailyAt string `yaml:"daily_at" validate:"omitempty,datetime=15:04"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: "postgres"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Royalty: RoyaltyConfig{
			SettlementCurrency: "USD",
			DefaultTimezone:    "UTC",
			Workers:            8,
			BatchSize:          500,
			DefaultAdminFee:    "0",
			SenderPartyID:      "ROYALTY",
			SenderName:         "Royalty Engine",
		},
		Storage:  StorageConfig{Backend: "local", LocalRoot: "var/reports/royalty"},
		Lock:     LockConfig{Backend: "memory", TTL: 5 * time.Minute},
		Schedule: ScheduleConfig{DailyAt: "02:00"},
		LogLevel: "info",
	}
}

// Load reads .env, the optional YAML file named by ROYALTY_CONFIG and
// environment overrides, then validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if path := os.Getenv("ROYALTY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.finalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML bytes over the defaults and validates them.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.finalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	c.Royalty.SettlementCurrency = strings.ToUpper(strings.TrimSpace(c.Royalty.SettlementCurrency))
	fee, err := decimal.NewFromString(strings.TrimSpace(c.Royalty.DefaultAdminFee))
	if err != nil {
		return fmt.Errorf("%w: default_admin_fee_percent: %v", ErrInvalidConfig, err)
	}
	if fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: default_admin_fee_percent out of range", ErrInvalidConfig)
	}
	c.Royalty.DefaultAdminFeePercent = fee
	if _, err := time.LoadLocation(c.Royalty.DefaultTimezone); err != nil {
		return fmt.Errorf("%w: default_timezone: %v", ErrInvalidConfig, err)
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Location returns the configured default timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Royalty.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func applyEnv(cfg *Config) {
	cfg.Database.Driver = getenvDefault("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Database.DSN))
	cfg.Database.Migrate = getenvBoolDefault("DB_MIGRATE", cfg.Database.Migrate)
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	if origins := splitCSV(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.HTTP.CORSOrigins = origins
	}
	cfg.Auth.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.Auth.JWTSecret))
	cfg.Royalty.SettlementCurrency = getenvDefault("SETTLEMENT_CURRENCY", cfg.Royalty.SettlementCurrency)
	cfg.Royalty.DefaultTimezone = getenvDefault("DEFAULT_TIMEZONE", cfg.Royalty.DefaultTimezone)
	cfg.Royalty.Workers = getenvIntDefault("CALC_WORKERS", cfg.Royalty.Workers)
	cfg.Royalty.BatchSize = getenvIntDefault("CALC_BATCH_SIZE", cfg.Royalty.BatchSize)
	cfg.Royalty.DefaultAdminFee = getenvDefault("DEFAULT_ADMIN_FEE_PERCENT", cfg.Royalty.DefaultAdminFee)
	cfg.Royalty.SenderPartyID = getenvDefault("SENDER_PARTY_ID", cfg.Royalty.SenderPartyID)
	cfg.Royalty.SenderName = getenvDefault("SENDER_NAME", cfg.Royalty.SenderName)
	cfg.Storage.Backend = getenvDefault("REPORT_STORAGE", cfg.Storage.Backend)
	cfg.Storage.LocalRoot = getenvDefault("REPORT_STORAGE_ROOT", cfg.Storage.LocalRoot)
	cfg.Storage.GCSBucket = getenvDefault("GCS_BUCKET", cfg.Storage.GCSBucket)
	cfg.Storage.GCSPrefix = getenvDefault("GCS_PREFIX", cfg.Storage.GCSPrefix)
	cfg.Storage.CredentialsFile = getenvDefault("GOOGLE_APPLICATION_CREDENTIALS", cfg.Storage.CredentialsFile)
	cfg.Lock.Backend = getenvDefault("LOCK_BACKEND", cfg.Lock.Backend)
	cfg.Lock.RedisAddr = getenvDefault("REDIS_ADDR", cfg.Lock.RedisAddr)
	cfg.Lock.TTL = getenvDuration("LOCK_TTL", cfg.Lock.TTL)
	cfg.Schedule.Enabled = getenvBoolDefault("SCHEDULE_ENABLED", cfg.Schedule.Enabled)
	cfg.Schedule.DailyAt = getenvDefault("SCHEDULE_DAILY_AT", cfg.Schedule.DailyAt)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
