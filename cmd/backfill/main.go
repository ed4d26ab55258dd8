package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kolade/sitewatch/backend/internal/adapters/cache"
	"github.com/kolade/sitewatch/backend/internal/adapters/database"
	"github.com/kolade/sitewatch/backend/internal/adapters/events"
	"github.com/kolade/sitewatch/backend/internal/application/services"
	"github.com/kolade/sitewatch/backend/internal/domain/providers"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/clients/postgres"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/clients/redis"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/observability"
	"github.com/kolade/sitewatch/backend/pkg/config"
)

// Rebuilds the rollup tables for a project over a date range, straight from
// the raw event store. Run after bulk imports or rollup schema changes.
func main() {
	var projectID string
	var fromArg string
	var toArg string

	flag.StringVar(&projectID, "project", "", "Project ID to rebuild (required)")
	flag.StringVar(&fromArg, "from", "", "Range start, YYYY-MM-DD (optional)")
	flag.StringVar(&toArg, "to", "", "Range end, exclusive, YYYY-MM-DD (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize structured logging
	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-backfill", env)

	if projectID == "" {
		log.Fatal().Msg("-project is required")
	}

	var from, to *time.Time
	if fromArg != "" {
		parsed, err := time.Parse("2006-01-02", fromArg)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -from date")
		}
		from = &parsed
	}
	if toArg != "" {
		parsed, err := time.Parse("2006-01-02", toArg)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -to date")
		}
		to = &parsed
	}

	log.Info().
		Str("service", cfg.OTEL.ServiceName+"-backfill").
		Str("version", cfg.OTEL.ServiceVersion).
		Str("project_id", projectID).
		Msg("Starting rollup backfill")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName+"-backfill",
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	eventRepo := database.NewEventAdapter(pgClient)
	rollupRepo := database.NewRollupAdapter(pgClient)

	// Cache and bus are best-effort: a backfill still works without Redis,
	// readers just wait out the TTL.
	var statsCache *services.StatsCache
	var bus providers.EventBus
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, skipping cache invalidation")
	} else {
		defer redisClient.Close()
		statsCache = services.NewStatsCache(cache.NewRedisAdapter(redisClient), cfg.StatsCache.TTL)
		bus = events.NewRedisEventBus(redisClient)
		defer bus.Close()
	}

	var rollupService *services.RollupService
	if statsCache != nil {
		rollupService = services.NewRollupService(rollupRepo, eventRepo, statsCache, bus, metrics)
	} else {
		rollupService = services.NewRollupService(rollupRepo, eventRepo, nil, nil, metrics)
	}

	start := time.Now()
	if err := rollupService.RebuildRange(ctx, projectID, from, to); err != nil {
		log.Fatal().Err(err).Str("project_id", projectID).Msg("Backfill failed")
	}
	log.Info().
		Str("project_id", projectID).
		Dur("duration", time.Since(start)).
		Msg("Backfill finished")
}
