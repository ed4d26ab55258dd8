package services

import (
	"context"
	"time"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/repositories"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/observability"
	apperrors "github.com/kolade/sitewatch/backend/pkg/errors"
)

// realtimeWindow is how far back the realtime snapshot looks.
const realtimeWindow = 5 * time.Minute

// overviewParams and pagesParams are the cache fingerprint inputs. Only
// fields that change the result belong here.
type overviewParams struct {
	Granularity repositories.Granularity `json:"granularity"`
	From        *time.Time               `json:"from"`
	To          *time.Time               `json:"to"`
}

type pagesParams struct {
	From   *time.Time              `json:"from"`
	To     *time.Time              `json:"to"`
	Filter repositories.PageFilter `json:"filter"`
}

// StatsService answers read queries over the rollup tables and the raw
// event store. Overview and pages go through the short-TTL cache; realtime
// always reads live events, and funnel stats delegate to the funnel service
// uncached.
type StatsService struct {
	rollups repositories.RollupRepository
	events  repositories.EventRepository
	funnels *FunnelService
	cache   *StatsCache
	metrics *observability.Metrics
}

// NewStatsService creates the stats service. cache and metrics may be nil.
func NewStatsService(
	rollups repositories.RollupRepository,
	events repositories.EventRepository,
	funnels *FunnelService,
	cache *StatsCache,
	metrics *observability.Metrics,
) *StatsService {
	return &StatsService{
		rollups: rollups,
		events:  events,
		funnels: funnels,
		cache:   cache,
		metrics: metrics,
	}
}

// Overview returns visit and unique-visitor counts bucketed by day, week or
// month over an optional time window, cache-first.
func (s *StatsService) Overview(ctx context.Context, projectID string, granularity repositories.Granularity, from, to *time.Time) ([]entities.OverviewPoint, error) {
	ctx, span := observability.StartSpan(ctx, "StatsService.Overview")
	defer span.End()

	if projectID == "" {
		return nil, apperrors.NewValidationError("project id is required")
	}
	if !granularity.Valid() {
		return nil, apperrors.NewValidationError("invalid granularity")
	}

	params := overviewParams{Granularity: granularity, From: from, To: to}
	var cached []entities.OverviewPoint
	if s.cache.Get(ctx, cacheNamespaceOverview, projectID, params, &cached) {
		observability.RecordCacheHit(ctx, s.metrics, cacheNamespaceOverview)
		return cached, nil
	}
	observability.RecordCacheMiss(ctx, s.metrics, cacheNamespaceOverview)

	points, err := s.rollups.OverviewRange(ctx, projectID, granularity, from, to)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	s.cache.Put(ctx, cacheNamespaceOverview, projectID, params, points)
	return points, nil
}

// Pages returns per-page aggregates over an optional time window, most
// visited first, cache-first.
func (s *StatsService) Pages(ctx context.Context, projectID string, filter repositories.PageFilter, from, to *time.Time) ([]entities.PageStats, error) {
	ctx, span := observability.StartSpan(ctx, "StatsService.Pages")
	defer span.End()

	if projectID == "" {
		return nil, apperrors.NewValidationError("project id is required")
	}

	params := pagesParams{From: from, To: to, Filter: filter}
	var cached []entities.PageStats
	if s.cache.Get(ctx, cacheNamespacePages, projectID, params, &cached) {
		observability.RecordCacheHit(ctx, s.metrics, cacheNamespacePages)
		return cached, nil
	}
	observability.RecordCacheMiss(ctx, s.metrics, cacheNamespacePages)

	pages, err := s.rollups.PageRange(ctx, projectID, filter, from, to)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	s.cache.Put(ctx, cacheNamespacePages, projectID, params, pages)
	return pages, nil
}

// Realtime returns a snapshot of the last five minutes straight from the
// event store. Never cached: the whole point is freshness.
func (s *StatsService) Realtime(ctx context.Context, projectID string) (*entities.RealtimeSnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "StatsService.Realtime")
	defer span.End()

	if projectID == "" {
		return nil, apperrors.NewValidationError("project id is required")
	}

	since := time.Now().UTC().Add(-realtimeWindow)
	snapshot, err := s.events.RealtimeSnapshot(ctx, projectID, since)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return snapshot, nil
}

// ListEvents returns a page of raw events, newest first.
func (s *StatsService) ListEvents(ctx context.Context, projectID string, filter repositories.EventFilter) (*entities.EventPage, error) {
	ctx, span := observability.StartSpan(ctx, "StatsService.ListEvents")
	defer span.End()

	if projectID == "" {
		return nil, apperrors.NewValidationError("project id is required")
	}
	return s.events.List(ctx, projectID, filter)
}

// FunnelStats delegates to the funnel service. Returns nil when the funnel
// does not exist.
func (s *StatsService) FunnelStats(ctx context.Context, projectID, funnelID string, from, to *time.Time) (*entities.FunnelStats, error) {
	return s.funnels.Stats(ctx, projectID, funnelID, from, to)
}
