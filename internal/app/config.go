package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":3978"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"45s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"60s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"file"`
	StorePath    string `envconfig:"STORE_PATH" default:"auth_config.json"`
	StoreKey     string `envconfig:"STORE_REDIS_KEY" default:"msbot:identity"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	DefaultAdminUserID string `envconfig:"DEFAULT_ADMIN_USER_ID"`
	DefaultAdminEmail  string `envconfig:"DEFAULT_ADMIN_EMAIL" default:"admin@example.com"`

	HandlersFile   string        `envconfig:"HANDLERS_FILE"`
	HandlerTimeout time.Duration `envconfig:"HANDLER_TIMEOUT" default:"30s"`

	SessionTimeout       time.Duration `envconfig:"SESSION_TIMEOUT" default:"24h"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1h"`
	JobsEnabled          bool          `envconfig:"JOBS_ENABLED" default:"false"`

	NATSURL     string `envconfig:"NATS_URL"`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"msbot.messages"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces cross-field rules envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case StoreFile:
		if strings.TrimSpace(c.StorePath) == "" {
			errs = append(errs, errors.New("STORE_PATH must be provided for the file backend"))
		}
	case StorePostgres:
		if strings.TrimSpace(c.PGDSN) == "" {
			errs = append(errs, errors.New("PG_DSN must be provided for the postgres backend"))
		}
	case StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of file, redis, postgres, memory", c.StoreBackend))
	}
	if c.JobsEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR must be provided when JOBS_ENABLED is set"))
	}
	for name, d := range map[string]time.Duration{
		"HANDLER_TIMEOUT":        c.HandlerTimeout,
		"SESSION_TIMEOUT":        c.SessionTimeout,
		"SESSION_SWEEP_INTERVAL": c.SessionSweepInterval,
		"APP_REQUEST_TIMEOUT":    c.AppRequestTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	// The server must outlive the handler deadline so the apology reaches the client.
	if c.HandlerTimeout > 0 {
		if c.AppWriteTimeout <= c.HandlerTimeout {
			errs = append(errs, fmt.Errorf("APP_WRITE_TIMEOUT (%s) must exceed HANDLER_TIMEOUT (%s)", c.AppWriteTimeout, c.HandlerTimeout))
		}
		if c.AppRequestTimeout <= c.HandlerTimeout {
			errs = append(errs, fmt.Errorf("APP_REQUEST_TIMEOUT (%s) must exceed HANDLER_TIMEOUT (%s)", c.AppRequestTimeout, c.HandlerTimeout))
		}
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// NATSEnabled reports whether the NATS transport should start.
func (c *Config) NATSEnabled() bool {
	return c != nil && strings.TrimSpace(c.NATSURL) != ""
}
