package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	APIURL   string `env:"CHAT_API_URL" envDefault:"http://localhost:8082/api/chat"`
	WSURL    string `env:"CHAT_WS_URL" envDefault:"ws://localhost:8082/ws"`
	Token    string `env:"CHAT_TOKEN"`
	UserID   int64  `env:"CHAT_USER_ID"`
	Username string `env:"CHAT_USERNAME"`

	MaxReconnectAttempts int           `env:"CHAT_MAX_RECONNECT_ATTEMPTS" envDefault:"8"`
	ReconnectBaseDelay   time.Duration `env:"CHAT_RECONNECT_BASE_DELAY" envDefault:"1s"`
	ReconnectMaxDelay    time.Duration `env:"CHAT_RECONNECT_MAX_DELAY" envDefault:"30s"`
	RequestTimeout       time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"10s"`

	RedisHost     string        `env:"REDIS_HOST"`
	RedisPort     string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	SnapshotTTL   time.Duration `env:"SNAPSHOT_TTL" envDefault:"24h"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	Environment    string   `env:"ENVIRONMENT" envDefault:"development"`
	StubPort       string   `env:"STUB_PORT" envDefault:"8082"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.KafkaBrokers = trimAll(cfg.KafkaBrokers)
	cfg.AllowedOrigins = trimAll(cfg.AllowedOrigins)
	return &cfg, nil
}

func trimAll(list []string) []string {
	out := list[:0]
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GetCORSOrigins returns CORS origins as a comma-separated string
func (c *Config) GetCORSOrigins() string {
	if c.IsProduction() && len(c.AllowedOrigins) > 0 && c.AllowedOrigins[0] != "*" {
		return strings.Join(c.AllowedOrigins, ",")
	}
	return "*"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// RedisEnabled reports whether a snapshot cache is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
