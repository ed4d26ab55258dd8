package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/repositories"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/observability"
	apperrors "github.com/kolade/sitewatch/backend/pkg/errors"
)

// FunnelService computes step-by-step conversion for a funnel from the raw
// event store. Funnel stats are not cached: funnels are queried rarely and
// against live events, so a stale window would cost more confusion than the
// recomputation costs.
type FunnelService struct {
	funnels repositories.FunnelRepository
	events  repositories.EventRepository
}

// NewFunnelService creates the funnel service.
func NewFunnelService(funnels repositories.FunnelRepository, events repositories.EventRepository) *FunnelService {
	return &FunnelService{
		funnels: funnels,
		events:  events,
	}
}

// Stats computes per-step visits, conversions, drop-off and conversion rate
// for a funnel over an optional time window. Conversion at step i counts the
// visitors of step i+1; the last step converts to itself. Returns nil when
// the funnel does not exist.
func (s *FunnelService) Stats(ctx context.Context, projectID, funnelID string, from, to *time.Time) (*entities.FunnelStats, error) {
	ctx, span := observability.StartSpan(ctx, "FunnelService.Stats")
	defer span.End()

	if projectID == "" || funnelID == "" {
		return nil, apperrors.NewValidationError("project id and funnel id are required")
	}

	funnel, err := s.funnels.GetByID(ctx, projectID, funnelID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		observability.RecordError(span, err)
		return nil, err
	}

	steps, err := NormalizeSteps(funnel.Steps)
	if err != nil {
		return nil, err
	}

	stats := &entities.FunnelStats{FunnelID: funnelID}
	if len(steps) == 0 {
		return stats, nil
	}

	visitorsByStep, err := s.events.CountStepVisitors(ctx, projectID, funnelID, from, to)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	visits := make([]int64, len(steps))
	for i, step := range steps {
		visits[i] = visitorsByStep[step.Key]
	}

	stats.TotalVisitors = visits[0]
	stats.Steps = make([]entities.FunnelStepStats, len(steps))
	for i, step := range steps {
		conversions := visits[i]
		if i < len(steps)-1 {
			conversions = visits[i+1]
		}
		dropOff := visits[i] - conversions
		if dropOff < 0 {
			dropOff = 0
		}
		rate := 0.0
		if visits[i] > 0 {
			rate = math.Round(float64(conversions)/float64(visits[i])*100*100) / 100
		}
		stats.Steps[i] = entities.FunnelStepStats{
			Key:            step.Key,
			Name:           step.Name,
			Order:          step.Order,
			Visits:         visits[i],
			Conversions:    conversions,
			DropOff:        dropOff,
			ConversionRate: rate,
		}
	}
	return stats, nil
}

// NormalizeSteps sorts steps by their declared order, reassigns dense orders
// 0..N-1 and rejects duplicate step keys. The input slice is not modified.
func NormalizeSteps(steps []entities.FunnelStep) ([]entities.FunnelStep, error) {
	normalized := make([]entities.FunnelStep, len(steps))
	copy(normalized, steps)
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Order < normalized[j].Order
	})

	seen := make(map[string]bool, len(normalized))
	for i := range normalized {
		key := normalized[i].Key
		if key == "" {
			return nil, apperrors.NewValidationError("funnel step key is required")
		}
		if seen[key] {
			return nil, apperrors.NewValidationError(fmt.Sprintf("duplicate funnel step key %q", key))
		}
		seen[key] = true
		normalized[i].Order = i
	}
	return normalized, nil
}
