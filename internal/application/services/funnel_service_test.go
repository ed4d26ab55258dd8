package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kolade/sitewatch/backend/internal/application/services"
	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	apperrors "github.com/kolade/sitewatch/backend/pkg/errors"
)

func threeStepFunnel() *entities.Funnel {
	return &entities.Funnel{
		ID:        "funnel-1",
		ProjectID: "proj-1",
		Name:      "Signup",
		Steps: []entities.FunnelStep{
			{Key: "landing", Name: "Landing", Order: 0},
			{Key: "form", Name: "Form", Order: 1},
			{Key: "done", Name: "Done", Order: 2},
		},
	}
}

func TestFunnelService_Stats(t *testing.T) {
	ctx := context.Background()

	t.Run("computes conversions, drop-off and rates per step", func(t *testing.T) {
		funnelRepo := new(MockFunnelRepository)
		eventRepo := new(MockEventRepository)
		service := services.NewFunnelService(funnelRepo, eventRepo)

		funnelRepo.On("GetByID", mock.Anything, "proj-1", "funnel-1").Return(threeStepFunnel(), nil)
		eventRepo.On("CountStepVisitors", mock.Anything, "proj-1", "funnel-1", (*time.Time)(nil), (*time.Time)(nil)).
			Return(map[string]int64{"landing": 10, "form": 6, "done": 6}, nil)

		stats, err := service.Stats(ctx, "proj-1", "funnel-1", nil, nil)

		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, int64(10), stats.TotalVisitors)
		require.Len(t, stats.Steps, 3)

		assert.Equal(t, []int64{10, 6, 6}, stepVisits(stats))
		// Conversion at a step counts the next step's visitors; the last
		// step converts to itself.
		assert.Equal(t, []int64{6, 6, 6}, stepConversions(stats))
		assert.Equal(t, []int64{4, 0, 0}, stepDropOffs(stats))
		assert.Equal(t, []float64{60, 100, 100}, stepRates(stats))
	})

	t.Run("step with zero visitors has zero rate, not NaN", func(t *testing.T) {
		funnelRepo := new(MockFunnelRepository)
		eventRepo := new(MockEventRepository)
		service := services.NewFunnelService(funnelRepo, eventRepo)

		funnelRepo.On("GetByID", mock.Anything, "proj-1", "funnel-1").Return(threeStepFunnel(), nil)
		eventRepo.On("CountStepVisitors", mock.Anything, "proj-1", "funnel-1", (*time.Time)(nil), (*time.Time)(nil)).
			Return(map[string]int64{"landing": 5}, nil)

		stats, err := service.Stats(ctx, "proj-1", "funnel-1", nil, nil)

		require.NoError(t, err)
		assert.Equal(t, []int64{5, 0, 0}, stepVisits(stats))
		assert.Equal(t, []float64{0, 0, 0}, stepRates(stats))
		assert.Equal(t, []int64{5, 0, 0}, stepDropOffs(stats))
	})

	t.Run("out-of-order visit counts never yield negative drop-off", func(t *testing.T) {
		funnelRepo := new(MockFunnelRepository)
		eventRepo := new(MockEventRepository)
		service := services.NewFunnelService(funnelRepo, eventRepo)

		funnelRepo.On("GetByID", mock.Anything, "proj-1", "funnel-1").Return(threeStepFunnel(), nil)
		// A later step can have more visitors than an earlier one when
		// visitors enter mid-funnel.
		eventRepo.On("CountStepVisitors", mock.Anything, "proj-1", "funnel-1", (*time.Time)(nil), (*time.Time)(nil)).
			Return(map[string]int64{"landing": 3, "form": 8, "done": 2}, nil)

		stats, err := service.Stats(ctx, "proj-1", "funnel-1", nil, nil)

		require.NoError(t, err)
		for _, step := range stats.Steps {
			assert.GreaterOrEqual(t, step.DropOff, int64(0))
		}
	})

	t.Run("missing funnel yields nil stats and no error", func(t *testing.T) {
		funnelRepo := new(MockFunnelRepository)
		eventRepo := new(MockEventRepository)
		service := services.NewFunnelService(funnelRepo, eventRepo)

		funnelRepo.On("GetByID", mock.Anything, "proj-1", "nope").
			Return(nil, apperrors.NewNotFoundError("funnel not found"))

		stats, err := service.Stats(ctx, "proj-1", "nope", nil, nil)

		require.NoError(t, err)
		assert.Nil(t, stats)
	})

	t.Run("funnel with no steps yields an empty result without querying events", func(t *testing.T) {
		funnelRepo := new(MockFunnelRepository)
		eventRepo := new(MockEventRepository)
		service := services.NewFunnelService(funnelRepo, eventRepo)

		funnelRepo.On("GetByID", mock.Anything, "proj-1", "funnel-1").
			Return(&entities.Funnel{ID: "funnel-1", ProjectID: "proj-1"}, nil)

		stats, err := service.Stats(ctx, "proj-1", "funnel-1", nil, nil)

		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, int64(0), stats.TotalVisitors)
		assert.Empty(t, stats.Steps)
		eventRepo.AssertNotCalled(t, "CountStepVisitors")
	})

	t.Run("propagates repository failures", func(t *testing.T) {
		funnelRepo := new(MockFunnelRepository)
		eventRepo := new(MockEventRepository)
		service := services.NewFunnelService(funnelRepo, eventRepo)

		funnelRepo.On("GetByID", mock.Anything, "proj-1", "funnel-1").
			Return(nil, errors.New("connection refused"))

		stats, err := service.Stats(ctx, "proj-1", "funnel-1", nil, nil)

		assert.Error(t, err)
		assert.Nil(t, stats)
	})
}

func TestNormalizeSteps(t *testing.T) {
	t.Run("sorts by declared order and reassigns dense orders", func(t *testing.T) {
		steps, err := services.NormalizeSteps([]entities.FunnelStep{
			{Key: "c", Order: 7},
			{Key: "a", Order: 2},
			{Key: "b", Order: 5},
		})

		require.NoError(t, err)
		require.Len(t, steps, 3)
		assert.Equal(t, "a", steps[0].Key)
		assert.Equal(t, "b", steps[1].Key)
		assert.Equal(t, "c", steps[2].Key)
		for i, step := range steps {
			assert.Equal(t, i, step.Order)
		}
	})

	t.Run("rejects duplicate step keys", func(t *testing.T) {
		_, err := services.NormalizeSteps([]entities.FunnelStep{
			{Key: "a", Order: 0},
			{Key: "a", Order: 1},
		})

		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("rejects empty step keys", func(t *testing.T) {
		_, err := services.NormalizeSteps([]entities.FunnelStep{{Key: "", Order: 0}})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		input := []entities.FunnelStep{
			{Key: "b", Order: 9},
			{Key: "a", Order: 1},
		}
		_, err := services.NormalizeSteps(input)

		require.NoError(t, err)
		assert.Equal(t, "b", input[0].Key)
		assert.Equal(t, 9, input[0].Order)
	})
}

func stepVisits(stats *entities.FunnelStats) []int64 {
	out := make([]int64, len(stats.Steps))
	for i, s := range stats.Steps {
		out[i] = s.Visits
	}
	return out
}

func stepConversions(stats *entities.FunnelStats) []int64 {
	out := make([]int64, len(stats.Steps))
	for i, s := range stats.Steps {
		out[i] = s.Conversions
	}
	return out
}

func stepDropOffs(stats *entities.FunnelStats) []int64 {
	out := make([]int64, len(stats.Steps))
	for i, s := range stats.Steps {
		out[i] = s.DropOff
	}
	return out
}

func stepRates(stats *entities.FunnelStats) []float64 {
	out := make([]float64, len(stats.Steps))
	for i, s := range stats.Steps {
		out[i] = s.ConversionRate
	}
	return out
}
