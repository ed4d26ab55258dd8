package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 500, cfg.Ingest.MaxBatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Aggregation.FlushDelay)
	assert.Equal(t, 30*time.Second, cfg.StatsCache.TTL)
	assert.False(t, cfg.OTEL.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_NAME", "analytics_test")
	t.Setenv("INGEST_MAX_BATCH", "100")
	t.Setenv("STATS_CACHE_TTL_SECONDS", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "analytics_test", cfg.Database.Database)
	assert.Equal(t, 100, cfg.Ingest.MaxBatchSize)
	assert.Equal(t, 10*time.Second, cfg.StatsCache.TTL)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db", Port: 5433, User: "app", Password: "secret",
		Database: "sitewatch", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db port=5433 user=app password=secret dbname=sitewatch sslmode=require",
		cfg.DatabaseDSN(),
	)
}
