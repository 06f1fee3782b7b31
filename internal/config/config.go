package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	StoreBackendFile     = "file"
	StoreBackendSQLite   = "sqlite"
	StoreBackendPostgres = "postgres"
)

type Config struct {
	BridgeURL    string `env:"BRIDGE_URL,required=true"`
	PublicURL    string `env:"PUBLIC_URL,default=http://localhost:8081"`
	CampaignFile string `env:"CAMPAIGN_FILE,default=campaign.yaml"`
	StoreBackend string `env:"STORE_BACKEND,default=file"`
	StateDir     string `env:"STATE_DIR,default=data"`
	DatabaseDSN  string `env:"DATABASE_DSN"`
	RedisURL     string `env:"REDIS_URL"`
	RabbitMQURL  string `env:"RABBITMQ_URL"`

	DailyBatchSize           int `env:"DAILY_BATCH_SIZE,default=1"`
	PacingDelaySeconds       int `env:"PACING_DELAY_SECONDS,default=18"`
	BatchIntervalMinutes     int `env:"BATCH_INTERVAL_MINUTES,default=60"`
	GatewayRateLimit         int `env:"GATEWAY_RATE_LIMIT,default=20"`
	GatewayRateWindowSeconds int `env:"GATEWAY_RATE_WINDOW_SECONDS,default=60"`
	GatewayTimeoutSeconds    int `env:"GATEWAY_TIMEOUT_SECONDS,default=30"`
	LockTTLMinutes           int `env:"LOCK_TTL_MINUTES,default=120"`

	APIPort   int    `env:"API_PORT,default=8081"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.BridgeURL) == "" {
		return fmt.Errorf("BRIDGE_URL is required")
	}

	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case StoreBackendFile:
	case StoreBackendSQLite, StoreBackendPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("DATABASE_DSN is required for store backend %q", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unsupported store backend %q", c.StoreBackend)
	}

	if c.DailyBatchSize < 1 {
		return fmt.Errorf("DAILY_BATCH_SIZE must be >= 1 (got %d)", c.DailyBatchSize)
	}
	if c.PacingDelaySeconds < 0 {
		return fmt.Errorf("PACING_DELAY_SECONDS must be >= 0 (got %d)", c.PacingDelaySeconds)
	}
	return nil
}

func (c *Config) PacingDelay() time.Duration {
	return time.Duration(c.PacingDelaySeconds) * time.Second
}

// BatchInterval is zero when periodic cycles are disabled.
func (c *Config) BatchInterval() time.Duration {
	if c.BatchIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.BatchIntervalMinutes) * time.Minute
}

func (c *Config) GatewayRateWindow() time.Duration {
	return time.Duration(c.GatewayRateWindowSeconds) * time.Second
}

func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// WebhookURL is where the bridge delivers session events for accountID.
func (c *Config) WebhookURL(accountID string) string {
	return fmt.Sprintf("%s/v1/accounts/%s/events", strings.TrimRight(c.PublicURL, "/"), accountID)
}
