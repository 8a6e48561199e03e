package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	ServiceName string `mapstructure:"SERVICE_NAME"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	StoreBackend string `mapstructure:"STORE_BACKEND"`
	DatabaseURL  string `mapstructure:"DB_DSN"`
	RedisURL     string `mapstructure:"REDIS_URL"`
	RedisPrefix  string `mapstructure:"REDIS_PREFIX"`
	SyncChannel  string `mapstructure:"SYNC_CHANNEL"`

	ClinicTimezone string `mapstructure:"CLINIC_TIMEZONE"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	RateLimitPerMinute      int `mapstructure:"RATE_LIMIT_PER_MIN"`
	RateLimitBurst          int `mapstructure:"RATE_LIMIT_BURST"`
	ActorRateLimitPerMinute int `mapstructure:"ACTOR_RATE_LIMIT_PER_MIN"`
	ActorRateLimitBurst     int `mapstructure:"ACTOR_RATE_LIMIT_BURST"`

	NotifyIntervalSeconds int    `mapstructure:"NOTIFY_INTERVAL_SECONDS"`
	NotifyBatchSize       int    `mapstructure:"NOTIFY_BATCH_SIZE"`
	NotifyProvider        string `mapstructure:"NOTIFY_PROVIDER"`
	NotifyWebhookURL      string `mapstructure:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookToken    string `mapstructure:"NOTIFY_WEBHOOK_TOKEN"`
}

var defaults = map[string]interface{}{
	"PORT":                     "8080",
	"ENV":                      "development",
	"SERVICE_NAME":             "opd-service",
	"LOG_LEVEL":                "info",
	"STORE_BACKEND":            BackendMemory,
	"DB_DSN":                   "",
	"REDIS_URL":                "",
	"REDIS_PREFIX":             "opd:",
	"SYNC_CHANNEL":             "opd_sync",
	"CLINIC_TIMEZONE":          "Asia/Kolkata",
	"JWT_SECRET":               "",
	"JWT_ISSUER":               "",
	"RATE_LIMIT_PER_MIN":       120,
	"RATE_LIMIT_BURST":         30,
	"ACTOR_RATE_LIMIT_PER_MIN": 600,
	"ACTOR_RATE_LIMIT_BURST":   120,
	"NOTIFY_INTERVAL_SECONDS":  5,
	"NOTIFY_BATCH_SIZE":        50,
	"NOTIFY_PROVIDER":          "log",
	"NOTIFY_WEBHOOK_URL":       "",
	"NOTIFY_WEBHOOK_TOKEN":     "",
}

// Load reads configuration from the environment, falling back to a .env file
// in the working directory when present.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		// AutomaticEnv alone does not reach Unmarshal.
		_ = v.BindEnv(key)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_DSN is required when STORE_BACKEND is %s", BackendPostgres)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND is %s", BackendRedis)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.JWTSecret == "" && !c.IsDev() {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.NotifyBatchSize < 0 {
		return fmt.Errorf("NOTIFY_BATCH_SIZE must not be negative")
	}
	return nil
}

// Location is the clinic calendar used for token numbers and day boundaries.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	return loc, nil
}

func (c *Config) NotifyInterval() time.Duration {
	if c.NotifyIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.NotifyIntervalSeconds) * time.Second
}
