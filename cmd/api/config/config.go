package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port           string   `validate:"required,numeric"`
	AllowedOrigins []string `validate:"min=1,dive,required"`
	LogLevel       string   `validate:"oneof=trace debug info warn error"`
	LogFormat      string   `validate:"oneof=json console"`

	Database DatabaseConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Quota    QuotaConfig
	Stripe   StripeConfig

	SessionCheckInterval time.Duration `validate:"gt=0"`
}

type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string `validate:"required"`
	Password string
	Name     string `validate:"required"`
	SSLMode  string `validate:"oneof=disable allow prefer require verify-ca verify-full"`
}

type AuthConfig struct {
	JWTSecret string        `validate:"required,min=32"`
	TokenTTL  time.Duration `validate:"gt=0"`
}

type ProviderConfig struct {
	APIKey        string
	BaseURL       string        `validate:"required,url"`
	Referer       string        `validate:"omitempty,url"`
	Title         string        `validate:"required"`
	Timeout       time.Duration `validate:"gt=0"`
	VerifyTimeout time.Duration `validate:"gt=0"`
}

type QuotaConfig struct {
	Timezone            string `validate:"required,timezone"`
	DailyRequestLimit   int    `validate:"gte=0"`
	MonthlyRequestLimit int    `validate:"gte=0"`
	DailyCostLimit      decimal.Decimal
	MonthlyCostLimit    decimal.Decimal
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string `validate:"omitempty,url"`
	CancelURL     string `validate:"omitempty,url"`
}

func (c *StripeConfig) Enabled() bool {
	return c.SecretKey != ""
}

// Location resolves the quota timezone. Validation guarantees it loads.
func (q QuotaConfig) Location() *time.Location {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// Load reads the configuration from the environment. Call godotenv first if a
// .env file should be honoured.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvOrDefault("PORT", "3000"),
		AllowedOrigins: strings.Split(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnvOrDefault("DB_NAME", "modelhub"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		},
		Provider: ProviderConfig{
			APIKey:        os.Getenv("OPENROUTER_API_KEY"),
			BaseURL:       getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Referer:       getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
			Title:         getEnvOrDefault("APP_TITLE", "ModelHub"),
			Timeout:       getEnvAsDuration("PROVIDER_TIMEOUT", 60*time.Second),
			VerifyTimeout: getEnvAsDuration("VERIFY_TIMEOUT", 10*time.Second),
		},
		Quota: QuotaConfig{
			Timezone:            getEnvOrDefault("SERVICE_TIMEZONE", "UTC"),
			DailyRequestLimit:   getEnvAsInt("DEFAULT_DAILY_REQUEST_LIMIT", 100),
			MonthlyRequestLimit: getEnvAsInt("DEFAULT_MONTHLY_REQUEST_LIMIT", 3000),
			DailyCostLimit:      getEnvAsDecimal("DEFAULT_DAILY_COST_LIMIT", decimal.NewFromInt(10)),
			MonthlyCostLimit:    getEnvAsDecimal("DEFAULT_MONTHLY_COST_LIMIT", decimal.NewFromInt(300)),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    os.Getenv("STRIPE_SUCCESS_URL"),
			CancelURL:     os.Getenv("STRIPE_CANCEL_URL"),
		},
		SessionCheckInterval: getEnvAsDuration("SESSION_CHECK_INTERVAL", 30*time.Second),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs the struct tags plus the checks tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed on '%s' (value %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}
	if cfg.Quota.DailyCostLimit.IsNegative() || cfg.Quota.MonthlyCostLimit.IsNegative() {
		return fmt.Errorf("invalid configuration: default cost limits must be >= 0")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvAsDecimal(key string, def decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return def
}
