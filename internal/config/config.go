package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Provider ProviderConfig
	Outbound OutboundConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RabbitMQConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

// ProviderConfig covers the inbound side: the payment provider's webhook
// signing secret and the replay window enforced by the signature guard.
type ProviderConfig struct {
	WebhookSigningSecret string
	ReplayWindow         time.Duration
}

// OutboundConfig covers tenant webhook delivery.
type OutboundConfig struct {
	DeliveryQueue       string
	DeliveryExchange    string
	DeliveryRoutingKey  string
	PrefetchCount       int
	HTTPTimeout         time.Duration
	MaxAttempts         int
	MaxResponseBodySize int
	SweepInterval       time.Duration
	SweepBatchSize      int
}

func Load() (*Config, error) {
	// Local development convenience; in production the variables come
	// from the environment directly.
	_ = godotenv.Load()

	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	getDefault := func(key, def string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return def
	}

	getInt := func(key string, def int) int {
		val := os.Getenv(key)
		if val == "" {
			return def
		}
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return def
		}
		return n
	}

	config := &Config{
		Server: ServerConfig{
			Port: getDefault("SERVER_PORT", "8080"),
			Host: getDefault("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     get("DB_HOST"),
			Port:     get("DB_PORT"),
			User:     get("DB_USER"),
			Password: get("DB_PASSWORD"),
			DBName:   get("DB_NAME"),
			SSLMode:  getDefault("DB_SSLMODE", "disable"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Host:     get("RABBITMQ_HOST"),
			Port:     get("RABBITMQ_PORT"),
			User:     get("RABBITMQ_USER"),
			Password: get("RABBITMQ_PASSWORD"),
			VHost:    getDefault("RABBITMQ_VHOST", "/"),
		},
		Provider: ProviderConfig{
			// Deliberately not required at startup: the inbound
			// endpoint answers 503 until the secret is configured.
			WebhookSigningSecret: os.Getenv("PROVIDER_WEBHOOK_SECRET"),
			ReplayWindow:         time.Duration(getInt("PROVIDER_REPLAY_WINDOW_SECONDS", 300)) * time.Second,
		},
		Outbound: OutboundConfig{
			DeliveryQueue:       getDefault("OUTBOUND_DELIVERY_QUEUE", "billing.webhook.deliveries"),
			DeliveryExchange:    os.Getenv("OUTBOUND_DELIVERY_EXCHANGE"),
			DeliveryRoutingKey:  getDefault("OUTBOUND_DELIVERY_ROUTING_KEY", "billing.webhook.deliveries"),
			PrefetchCount:       getInt("OUTBOUND_PREFETCH_COUNT", 8),
			HTTPTimeout:         time.Duration(getInt("OUTBOUND_HTTP_TIMEOUT_SECONDS", 10)) * time.Second,
			MaxAttempts:         getInt("OUTBOUND_MAX_ATTEMPTS", 3),
			MaxResponseBodySize: getInt("OUTBOUND_MAX_RESPONSE_BODY_BYTES", 4096),
			SweepInterval:       time.Duration(getInt("OUTBOUND_SWEEP_INTERVAL_SECONDS", 15)) * time.Second,
			SweepBatchSize:      getInt("OUTBOUND_SWEEP_BATCH_SIZE", 100),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return config, nil
}

// ConnectionString returns a DSN string for GORM
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

// MigrationURL returns a postgres:// URL for golang-migrate
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		c.User, c.Password, c.Host, c.Port, c.VHost)
}
