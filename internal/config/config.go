package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"sqlite" validate:"oneof=postgres sqlite"`
	DatabaseURI   string `envconfig:"DATABASE_URI" validate:"required_if=StorageDriver postgres"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"nudge.db" validate:"required_if=StorageDriver sqlite"`

	Timezone           string        `envconfig:"TIMEZONE" default:"Local"`
	SnoozeMinutes      int           `envconfig:"SNOOZE_MINUTES" default:"10" validate:"min=1,max=1440"`
	DefaultLeadMinutes int           `envconfig:"DEFAULT_LEAD_MINUTES" default:"15" validate:"min=0,max=10080"`
	ReconcileInterval  time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1m" validate:"min=1s"`

	TelegramToken       string  `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID      int64   `envconfig:"TELEGRAM_CHAT_ID" validate:"required_with=TelegramToken"`
	NotifyRatePerSecond float64 `envconfig:"NOTIFY_RATE_PER_SECOND" default:"1" validate:"min=0"`

	AIAPIKey  string `envconfig:"AI_API_KEY"`
	AIBaseURL string `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1" validate:"omitempty,url"`
	AIModel   string `envconfig:"AI_MODEL" default:"openai/gpt-4o-mini"`

	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":9090"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"auto" validate:"oneof=auto text json"`

	location *time.Location
}

// Load reads an optional .env file, then the environment, and validates
// the result. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc
	return &cfg, nil
}

// Location is the zone all recurrence rules are evaluated in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func (c *Config) SnoozeDuration() time.Duration {
	return time.Duration(c.SnoozeMinutes) * time.Minute
}

func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

func (c *Config) AIEnabled() bool {
	return c.AIAPIKey != ""
}
