package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kolade/sitewatch/backend/internal/adapters/cache"
	"github.com/kolade/sitewatch/backend/internal/application/services"
	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/repositories"
	apperrors "github.com/kolade/sitewatch/backend/pkg/errors"
)

func newStatsFixture() (*MockRollupRepository, *MockEventRepository, *services.StatsCache, *services.StatsService) {
	rollupRepo := new(MockRollupRepository)
	eventRepo := new(MockEventRepository)
	funnelRepo := new(MockFunnelRepository)
	statsCache := services.NewStatsCache(cache.NewMemoryAdapter(), 30*time.Second)
	funnelService := services.NewFunnelService(funnelRepo, eventRepo)
	statsService := services.NewStatsService(rollupRepo, eventRepo, funnelService, statsCache, nil)
	return rollupRepo, eventRepo, statsCache, statsService
}

func TestStatsService_Overview(t *testing.T) {
	ctx := context.Background()
	points := []entities.OverviewPoint{
		{Bucket: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Visits: 40, UniqueVisitors: 12},
		{Bucket: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Visits: 55, UniqueVisitors: 17},
	}

	t.Run("second identical query is served from cache", func(t *testing.T) {
		rollupRepo, _, _, statsService := newStatsFixture()
		rollupRepo.On("OverviewRange", mock.Anything, "proj-1", repositories.GranularityDay, (*time.Time)(nil), (*time.Time)(nil)).
			Return(points, nil).Once()

		first, err := statsService.Overview(ctx, "proj-1", repositories.GranularityDay, nil, nil)
		require.NoError(t, err)
		second, err := statsService.Overview(ctx, "proj-1", repositories.GranularityDay, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, points, first)
		assert.Equal(t, points, second)
		rollupRepo.AssertNumberOfCalls(t, "OverviewRange", 1)
	})

	t.Run("different granularity misses the cache", func(t *testing.T) {
		rollupRepo, _, _, statsService := newStatsFixture()
		rollupRepo.On("OverviewRange", mock.Anything, "proj-1", mock.Anything, (*time.Time)(nil), (*time.Time)(nil)).
			Return(points, nil)

		_, err := statsService.Overview(ctx, "proj-1", repositories.GranularityDay, nil, nil)
		require.NoError(t, err)
		_, err = statsService.Overview(ctx, "proj-1", repositories.GranularityWeek, nil, nil)
		require.NoError(t, err)

		rollupRepo.AssertNumberOfCalls(t, "OverviewRange", 2)
	})

	t.Run("invalidation forces a recompute", func(t *testing.T) {
		rollupRepo, _, statsCache, statsService := newStatsFixture()
		rollupRepo.On("OverviewRange", mock.Anything, "proj-1", repositories.GranularityDay, (*time.Time)(nil), (*time.Time)(nil)).
			Return(points, nil)

		_, err := statsService.Overview(ctx, "proj-1", repositories.GranularityDay, nil, nil)
		require.NoError(t, err)

		require.NoError(t, statsCache.InvalidateProject(ctx, "proj-1"))

		_, err = statsService.Overview(ctx, "proj-1", repositories.GranularityDay, nil, nil)
		require.NoError(t, err)
		rollupRepo.AssertNumberOfCalls(t, "OverviewRange", 2)
	})

	t.Run("invalidating one project leaves other projects cached", func(t *testing.T) {
		rollupRepo, _, statsCache, statsService := newStatsFixture()
		rollupRepo.On("OverviewRange", mock.Anything, mock.Anything, repositories.GranularityDay, (*time.Time)(nil), (*time.Time)(nil)).
			Return(points, nil)

		_, err := statsService.Overview(ctx, "proj-1", repositories.GranularityDay, nil, nil)
		require.NoError(t, err)
		_, err = statsService.Overview(ctx, "proj-2", repositories.GranularityDay, nil, nil)
		require.NoError(t, err)

		require.NoError(t, statsCache.InvalidateProject(ctx, "proj-1"))

		_, err = statsService.Overview(ctx, "proj-2", repositories.GranularityDay, nil, nil)
		require.NoError(t, err)
		// proj-2 still cached: two initial computes, no third.
		rollupRepo.AssertNumberOfCalls(t, "OverviewRange", 2)
	})

	t.Run("rejects unknown granularity", func(t *testing.T) {
		_, _, _, statsService := newStatsFixture()

		_, err := statsService.Overview(ctx, "proj-1", "hourly", nil, nil)

		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("repository failures are not cached", func(t *testing.T) {
		rollupRepo, _, _, statsService := newStatsFixture()
		rollupRepo.On("OverviewRange", mock.Anything, "proj-1", repositories.GranularityDay, (*time.Time)(nil), (*time.Time)(nil)).
			Return(nil, errors.New("connection refused")).Once()
		rollupRepo.On("OverviewRange", mock.Anything, "proj-1", repositories.GranularityDay, (*time.Time)(nil), (*time.Time)(nil)).
			Return(points, nil).Once()

		_, err := statsService.Overview(ctx, "proj-1", repositories.GranularityDay, nil, nil)
		assert.Error(t, err)

		result, err := statsService.Overview(ctx, "proj-1", repositories.GranularityDay, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, points, result)
	})
}

func TestStatsService_Pages(t *testing.T) {
	ctx := context.Background()
	pages := []entities.PageStats{
		{Path: "/pricing", Visits: 90, UniqueVisitors: 30},
		{Path: "/docs", Visits: 40, UniqueVisitors: 22},
	}

	t.Run("cache-first with filter in the fingerprint", func(t *testing.T) {
		rollupRepo, _, _, statsService := newStatsFixture()
		rollupRepo.On("PageRange", mock.Anything, "proj-1", mock.Anything, (*time.Time)(nil), (*time.Time)(nil)).
			Return(pages, nil)

		noFilter := repositories.PageFilter{}
		prefixed := repositories.PageFilter{PathPrefix: "/docs"}

		_, err := statsService.Pages(ctx, "proj-1", noFilter, nil, nil)
		require.NoError(t, err)
		_, err = statsService.Pages(ctx, "proj-1", noFilter, nil, nil)
		require.NoError(t, err)
		_, err = statsService.Pages(ctx, "proj-1", prefixed, nil, nil)
		require.NoError(t, err)

		// Identical query hit the cache; the filtered one recomputed.
		rollupRepo.AssertNumberOfCalls(t, "PageRange", 2)
	})
}

func TestStatsService_Realtime(t *testing.T) {
	ctx := context.Background()

	t.Run("always reads live events, never the cache", func(t *testing.T) {
		_, eventRepo, _, statsService := newStatsFixture()
		snapshot := &entities.RealtimeSnapshot{Events: 12, Visitors: 4}
		eventRepo.On("RealtimeSnapshot", mock.Anything, "proj-1", mock.Anything).Return(snapshot, nil)

		first, err := statsService.Realtime(ctx, "proj-1")
		require.NoError(t, err)
		second, err := statsService.Realtime(ctx, "proj-1")
		require.NoError(t, err)

		assert.Equal(t, snapshot, first)
		assert.Equal(t, snapshot, second)
		eventRepo.AssertNumberOfCalls(t, "RealtimeSnapshot", 2)
	})

	t.Run("window is five minutes", func(t *testing.T) {
		_, eventRepo, _, statsService := newStatsFixture()
		eventRepo.On("RealtimeSnapshot", mock.Anything, "proj-1", mock.MatchedBy(func(since time.Time) bool {
			age := time.Since(since)
			return age > 4*time.Minute+59*time.Second && age < 5*time.Minute+time.Second
		})).Return(&entities.RealtimeSnapshot{}, nil)

		_, err := statsService.Realtime(ctx, "proj-1")
		require.NoError(t, err)
		eventRepo.AssertExpectations(t)
	})
}

func TestStatsService_ListEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("delegates to the event repository", func(t *testing.T) {
		_, eventRepo, _, statsService := newStatsFixture()
		page := &entities.EventPage{TotalCount: 2, Limit: 100}
		filter := repositories.EventFilter{}
		eventRepo.On("List", mock.Anything, "proj-1", filter).Return(page, nil)

		result, err := statsService.ListEvents(ctx, "proj-1", filter)

		require.NoError(t, err)
		assert.Equal(t, page, result)
	})

	t.Run("requires a project id", func(t *testing.T) {
		_, _, _, statsService := newStatsFixture()

		_, err := statsService.ListEvents(ctx, "", repositories.EventFilter{})

		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestStatsCache(t *testing.T) {
	ctx := context.Background()

	t.Run("fingerprint is stable across equivalent params", func(t *testing.T) {
		statsCache := services.NewStatsCache(cache.NewMemoryAdapter(), time.Minute)

		type params struct {
			A string `json:"a"`
			B int    `json:"b"`
		}
		statsCache.Put(ctx, "overview", "proj-1", params{A: "x", B: 2}, []int{1, 2, 3})

		var out []int
		assert.True(t, statsCache.Get(ctx, "overview", "proj-1", params{A: "x", B: 2}, &out))
		assert.Equal(t, []int{1, 2, 3}, out)
		assert.False(t, statsCache.Get(ctx, "overview", "proj-1", params{A: "x", B: 3}, &out))
	})

	t.Run("namespaces do not collide", func(t *testing.T) {
		statsCache := services.NewStatsCache(cache.NewMemoryAdapter(), time.Minute)

		statsCache.Put(ctx, "overview", "proj-1", "p", "overview-value")

		var out string
		assert.False(t, statsCache.Get(ctx, "pages", "proj-1", "p", &out))
		assert.True(t, statsCache.Get(ctx, "overview", "proj-1", "p", &out))
	})

	t.Run("nil provider never hits", func(t *testing.T) {
		statsCache := services.NewStatsCache(nil, time.Minute)

		statsCache.Put(ctx, "overview", "proj-1", "p", "v")

		var out string
		assert.False(t, statsCache.Get(ctx, "overview", "proj-1", "p", &out))
		assert.NoError(t, statsCache.InvalidateProject(ctx, "proj-1"))
	})
}
