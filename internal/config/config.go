// Package config provides configuration management for the blockso backend.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Covalent CovalentConfig
	Alchemy  AlchemyConfig
	Worker   WorkerConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CovalentConfig holds configuration for the Covalent history provider
type CovalentConfig struct {
	APIKey   string
	BaseURL  string
	PageSize int
	// MaxPages bounds the pages fetched per import. Policy knob, not a
	// correctness requirement.
	MaxPages int
	// RequestsPerSecond throttles calls against the provider
	RequestsPerSecond float64
}

// AlchemyConfig holds configuration for Alchemy Notify and the RPC node
type AlchemyConfig struct {
	// SigningKey verifies the HMAC signature on incoming webhook requests
	SigningKey string
	// NotifyToken authenticates webhook address-list updates
	NotifyToken string
	// WebhookID identifies the address-activity webhook
	WebhookID string
	// DashboardURL is the endpoint for webhook address-list updates
	DashboardURL string
	// RPCURL is the JSON-RPC endpoint used to resolve transaction detail
	RPCURL string
}

// WorkerConfig holds job worker configuration
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Postgres: PostgresConfig{
			Host:           getEnv("POSTGRES_HOST", "localhost"),
			Port:           getEnv("POSTGRES_PORT", "5432"),
			Database:       getEnv("POSTGRES_DB", "blockso"),
			User:           getEnv("POSTGRES_USER", "blockso"),
			Password:       getEnv("POSTGRES_PASSWORD", ""),
			MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
		},
		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
		},
		Covalent: CovalentConfig{
			APIKey:            getEnv("COVALENT_API_KEY", ""),
			BaseURL:           getEnv("COVALENT_BASE_URL", "https://api.covalenthq.com/v1"),
			PageSize:          getEnvAsInt("COVALENT_PAGE_SIZE", 100),
			MaxPages:          getEnvAsInt("COVALENT_MAX_PAGES", 10),
			RequestsPerSecond: getEnvAsFloat("COVALENT_RPS", 4.0),
		},
		Alchemy: AlchemyConfig{
			SigningKey:   getEnv("ALCHEMY_SIGNING_KEY", ""),
			NotifyToken:  getEnv("ALCHEMY_NOTIFY_TOKEN", ""),
			WebhookID:    getEnv("ALCHEMY_WEBHOOK_ID", ""),
			DashboardURL: getEnv("ALCHEMY_DASHBOARD_URL", "https://dashboard.alchemy.com/api/update-webhook-addresses"),
			RPCURL:       getEnv("ALCHEMY_RPC_URL", ""),
		},
		Worker: WorkerConfig{
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 5),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks configuration invariants
func (c *Config) validate() error {
	if c.Postgres.MaxConnections <= 0 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive, got %d", c.Postgres.MaxConnections)
	}
	if c.Covalent.PageSize <= 0 || c.Covalent.PageSize > 1000 {
		return fmt.Errorf("COVALENT_PAGE_SIZE must be in (0, 1000], got %d", c.Covalent.PageSize)
	}
	if c.Covalent.MaxPages <= 0 {
		return fmt.Errorf("COVALENT_MAX_PAGES must be positive, got %d", c.Covalent.MaxPages)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
