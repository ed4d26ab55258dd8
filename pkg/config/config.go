package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kolade/sitewatch/backend/pkg/secrets"
)

// Config holds all application configuration
type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	Ingest      IngestConfig
	Aggregation AggregationConfig
	StatsCache  StatsCacheConfig
	OTEL        OTELConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// IngestConfig holds event admission configuration
type IngestConfig struct {
	MaxBatchSize int
}

// AggregationConfig holds rollup scheduling configuration
type AggregationConfig struct {
	// FlushDelay is how long the scheduler waits after the first notify
	// before draining the pending set, coalescing bursts into one flush.
	FlushDelay time.Duration
}

// StatsCacheConfig holds read-cache configuration
type StatsCacheConfig struct {
	TTL time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables. When Vault is
// enabled, secrets (DB_PASSWORD, REDIS_PASSWORD) are pulled into the
// environment first, so the rest of the lookup stays uniform.
func Load() (*Config, error) {
	vaultCfg := secrets.LoadVaultConfigFromEnv("")
	if vaultCfg.Enabled {
		if _, err := secrets.ApplyVaultSecrets(context.Background(), vaultCfg); err != nil {
			return nil, fmt.Errorf("failed to apply vault secrets: %w", err)
		}
	}

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "sitewatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Ingest: IngestConfig{
			MaxBatchSize: getEnvAsInt("INGEST_MAX_BATCH", 500),
		},
		Aggregation: AggregationConfig{
			FlushDelay: time.Duration(getEnvAsInt("AGGREGATION_FLUSH_DELAY_MS", 50)) * time.Millisecond,
		},
		StatsCache: StatsCacheConfig{
			TTL: time.Duration(getEnvAsInt("STATS_CACHE_TTL_SECONDS", 30)) * time.Second,
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "sitewatch-aggregation"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
