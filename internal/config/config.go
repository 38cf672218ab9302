package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/smsmaster/sms-engine/internal/ratelimit"
)

const defaultProviderOrder = "twilio,textbelt"

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	// RedisURL is optional; empty selects the in-memory rate limiter.
	RedisURL string `env:"REDIS_URL"`

	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=8"`

	ProviderDefaultOrder string `env:"PROVIDER_DEFAULT_ORDER"`
	RetryMaxAttempts     int    `env:"RETRY_MAX_ATTEMPTS,default=3"`
	RetryBackoffBaseMS   int    `env:"RETRY_BACKOFF_BASE_MS,default=1000"`
	SendTimeoutMS        int    `env:"SEND_TIMEOUT_MS,default=10000"`

	SchedulerScanInterval string `env:"SCHEDULER_SCAN_INTERVAL,default=5s"`
	SchedulerScanLimit    int    `env:"SCHEDULER_SCAN_LIMIT,default=100"`

	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber  string `env:"TWILIO_FROM_NUMBER"`
	TwilioQuotaLimit  int64  `env:"TWILIO_QUOTA_LIMIT,default=100"`
	TwilioQuotaWindow string `env:"TWILIO_QUOTA_WINDOW,default=24h"`

	TextbeltAPIKey      string `env:"TEXTBELT_API_KEY"`
	TextbeltQuotaLimit  int64  `env:"TEXTBELT_QUOTA_LIMIT,default=250"`
	TextbeltQuotaWindow string `env:"TEXTBELT_QUOTA_WINDOW,default=24h"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	// required=true only rejects unset variables; an exported empty string
	// would otherwise slip through to gorm and rabbit as an empty DSN.
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, fmt.Errorf("DATABASE_DSN must not be empty")
	}
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		return nil, fmt.Errorf("RABBITMQ_URL must not be empty")
	}
	if _, err := cfg.ScanInterval(); err != nil {
		return nil, err
	}
	if _, err := cfg.ProviderQuotas(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultOrder returns the configured provider fallback order.
func (c *Config) DefaultOrder() []string {
	raw := c.ProviderDefaultOrder
	if strings.TrimSpace(raw) == "" {
		raw = defaultProviderOrder
	}

	parts := strings.Split(raw, ",")
	order := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		if name != "" {
			order = append(order, name)
		}
	}
	return order
}

// ProviderQuotas returns the per-provider quota map for the rate limiter.
// Only providers with configured credentials are included.
func (c *Config) ProviderQuotas() (map[string]ratelimit.Quota, error) {
	quotas := make(map[string]ratelimit.Quota, 2)

	if c.TwilioConfigured() {
		window, err := parseWindow("TWILIO_QUOTA_WINDOW", c.TwilioQuotaWindow)
		if err != nil {
			return nil, err
		}
		quotas["twilio"] = ratelimit.Quota{Limit: c.TwilioQuotaLimit, Window: window}
	}

	if c.TextbeltConfigured() {
		window, err := parseWindow("TEXTBELT_QUOTA_WINDOW", c.TextbeltQuotaWindow)
		if err != nil {
			return nil, err
		}
		quotas["textbelt"] = ratelimit.Quota{Limit: c.TextbeltQuotaLimit, Window: window}
	}

	return quotas, nil
}

func (c *Config) TwilioConfigured() bool {
	return strings.TrimSpace(c.TwilioAccountSID) != "" &&
		strings.TrimSpace(c.TwilioAuthToken) != "" &&
		strings.TrimSpace(c.TwilioFromNumber) != ""
}

func (c *Config) TextbeltConfigured() bool {
	return strings.TrimSpace(c.TextbeltAPIKey) != ""
}

func (c *Config) ScanInterval() (time.Duration, error) {
	return parseWindow("SCHEDULER_SCAN_INTERVAL", c.SchedulerScanInterval)
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMS) * time.Millisecond
}

func (c *Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.RetryBackoffBaseMS) * time.Millisecond
}

func parseWindow(name string, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return d, nil
}
