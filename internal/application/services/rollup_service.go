package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/providers"
	"github.com/kolade/sitewatch/backend/internal/domain/repositories"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/observability"
	apperrors "github.com/kolade/sitewatch/backend/pkg/errors"
)

// RollupService rebuilds the per-date rollup tables from the raw event
// store. A rebuild is a full replace: within one transaction the date's
// rows are deleted from every rollup table and recomputed from scratch, so
// readers never observe a half-built date.
type RollupService struct {
	rollups     repositories.RollupRepository
	events      repositories.EventRepository
	invalidator ProjectInvalidator
	bus         providers.EventBus
	metrics     *observability.Metrics
}

// NewRollupService creates the rollup service. invalidator, bus and metrics
// may be nil.
func NewRollupService(
	rollups repositories.RollupRepository,
	events repositories.EventRepository,
	invalidator ProjectInvalidator,
	bus providers.EventBus,
	metrics *observability.Metrics,
) *RollupService {
	return &RollupService{
		rollups:     rollups,
		events:      events,
		invalidator: invalidator,
		bus:         bus,
		metrics:     metrics,
	}
}

// RebuildDate recomputes all rollups for one (project, date) pair.
func (s *RollupService) RebuildDate(ctx context.Context, projectID string, day entities.Day) error {
	ctx, span := observability.StartSpan(ctx, "RollupService.RebuildDate")
	defer span.End()

	if projectID == "" {
		return apperrors.NewValidationError("project id is required")
	}
	if _, err := entities.ParseDay(string(day)); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("invalid date %q", day))
	}

	start := time.Now()
	if err := s.rollups.ReplaceDay(ctx, projectID, day); err != nil {
		observability.RecordError(span, err)
		observability.RecordRebuildFailure(ctx, s.metrics, projectID)
		return err
	}
	observability.RecordRebuildMetric(ctx, s.metrics, projectID, time.Since(start))

	observability.LoggerFromContext(ctx).Debug().
		Str("project_id", projectID).
		Str("date", string(day)).
		Dur("duration", time.Since(start)).
		Msg("Rebuilt rollups for date")
	return nil
}

// RebuildRange rebuilds every date in [from, to] that actually has events,
// then invalidates the project's cached stats once and announces the rebuild
// on the event bus. A range with no events is a no-op. Used by backfills
// after bulk imports or rollup schema changes.
func (s *RollupService) RebuildRange(ctx context.Context, projectID string, from, to *time.Time) error {
	ctx, span := observability.StartSpan(ctx, "RollupService.RebuildRange")
	defer span.End()

	if projectID == "" {
		return apperrors.NewValidationError("project id is required")
	}

	days, err := s.events.DaysWithEvents(ctx, projectID, from, to)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	if len(days) == 0 {
		log.Info().Str("project_id", projectID).Msg("No event dates in range, nothing to rebuild")
		return nil
	}

	for _, day := range days {
		if err := s.RebuildDate(ctx, projectID, day); err != nil {
			return err
		}
	}

	if s.invalidator != nil {
		if err := s.invalidator.InvalidateProject(ctx, projectID); err != nil {
			log.Warn().Err(err).Str("project_id", projectID).Msg("Stats cache invalidation failed")
		}
	}
	s.announce(ctx, projectID, days)

	observability.LoggerFromContext(ctx).Info().
		Str("project_id", projectID).
		Int("dates", len(days)).
		Msg("Rebuilt rollup range")
	return nil
}

// InvalidateProject drops the project's cached stats and announces the
// change on the event bus so other instances drop theirs too. Satisfies the
// scheduler's invalidator, letting flush cycles converge across processes.
func (s *RollupService) InvalidateProject(ctx context.Context, projectID string) error {
	if s.invalidator != nil {
		if err := s.invalidator.InvalidateProject(ctx, projectID); err != nil {
			return err
		}
	}
	s.announce(ctx, projectID, nil)
	return nil
}

// announce publishes a rollup update so other instances drop their cached
// stats for the project.
func (s *RollupService) announce(ctx context.Context, projectID string, days []entities.Day) {
	if s.bus == nil {
		return
	}
	event := &entities.RollupEvent{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Dates:       days,
		CompletedAt: time.Now().UTC(),
	}
	if err := s.bus.Publish(ctx, providers.EventChannelRollupUpdates, event); err != nil {
		log.Warn().Err(err).Str("project_id", projectID).Msg("Failed to publish rollup update")
	}
}
