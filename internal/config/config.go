package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the backend
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Usage     UsageConfig
	Billing   BillingConfig
	Providers ProvidersConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

// DatabaseConfig holds Postgres configuration. The database is optional:
// when it is absent or unreachable the usage store degrades to the local
// file backend.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Enabled reports whether a remote database is configured at all.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds Redis configuration. Redis is optional and only backs
// the webhook duplicate-delivery guard.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// UsageConfig holds quota configuration
type UsageConfig struct {
	FreeLimit      int
	LocalStorePath string
}

// BillingConfig holds Lemon Squeezy configuration
type BillingConfig struct {
	APIKey        string
	StoreID       string
	VariantID     string
	WebhookSecret string
	APIBaseURL    string
	RedirectURL   string
}

// ProvidersConfig holds external generation provider configuration
type ProvidersConfig struct {
	ReveAPIKey          string
	ReveBaseURL         string
	OpenRouterAPIKey    string
	OpenRouterBaseURL   string
	OpenRouterModel     string
	ProviderCallTimeout time.Duration
}

// Load reads configuration from environment variables. Nothing is fatal
// here: missing optional features (database, redis, checkout, optimizer)
// are detected by the components that own them.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", "30s"),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", "120s"),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", "120s"),
			CORSOrigins:  []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", ""),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "reveworks"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "reveworks"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Usage: UsageConfig{
			FreeLimit:      getEnvAsInt("USAGE_FREE_LIMIT", 3),
			LocalStorePath: getEnv("USAGE_LOCAL_STORE_PATH", "data/usage.json"),
		},
		Billing: BillingConfig{
			APIKey:        getEnv("LEMON_API_KEY", ""),
			StoreID:       getEnv("LEMON_STORE_ID", ""),
			VariantID:     getEnv("LEMON_VARIANT_ID", ""),
			WebhookSecret: getEnv("LEMON_WEBHOOK_SECRET", ""),
			APIBaseURL:    getEnv("LEMON_API_BASE_URL", "https://api.lemonsqueezy.com"),
			RedirectURL:   getEnv("LEMON_REDIRECT_URL", ""),
		},
		Providers: ProvidersConfig{
			ReveAPIKey:          getEnv("REVE_API_KEY", ""),
			ReveBaseURL:         getEnv("REVE_BASE_URL", "https://api.reve.com"),
			OpenRouterAPIKey:    getEnv("OPENROUTER_API_KEY", ""),
			OpenRouterBaseURL:   getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai"),
			OpenRouterModel:     getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
			ProviderCallTimeout: getEnvAsDuration("PROVIDER_CALL_TIMEOUT", "90s"),
		},
	}

	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ := time.ParseDuration(defaultValue)
		return duration
	}
	return value
}
