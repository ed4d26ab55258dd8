package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/repositories"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/observability"
	apperrors "github.com/kolade/sitewatch/backend/pkg/errors"
	"github.com/kolade/sitewatch/backend/pkg/identity"
)

// AggregationNotifier receives the (project, day) pairs touched by an
// accepted batch. Implemented by the aggregation scheduler.
type AggregationNotifier interface {
	Notify(projectID string, day entities.Day)
}

// IngestionService admits raw event batches into the event store. Admission
// is idempotent: replaying a batch skips rows already stored rather than
// duplicating them, and a batch with some malformed events still admits the
// well-formed remainder.
type IngestionService struct {
	events       repositories.EventRepository
	funnels      repositories.FunnelRepository
	notifier     AggregationNotifier
	metrics      *observability.Metrics
	maxBatchSize int
}

// NewIngestionService creates the ingestion service. notifier and metrics
// may be nil.
func NewIngestionService(
	events repositories.EventRepository,
	funnels repositories.FunnelRepository,
	notifier AggregationNotifier,
	metrics *observability.Metrics,
	maxBatchSize int,
) *IngestionService {
	return &IngestionService{
		events:       events,
		funnels:      funnels,
		notifier:     notifier,
		metrics:      metrics,
		maxBatchSize: maxBatchSize,
	}
}

// Admit validates, deduplicates and stores a batch of raw events for a
// project. Malformed events are reported per index in the result and do not
// block the rest of the batch. Events whose idempotency key is already
// stored count as skipped. Accepted + Skipped + len(Errors) always equals
// the batch size.
func (s *IngestionService) Admit(ctx context.Context, projectID string, batch []entities.IngestEvent) (*entities.AdmitResult, error) {
	ctx, span := observability.StartSpan(ctx, "IngestionService.Admit")
	defer span.End()

	if projectID == "" {
		return nil, apperrors.NewValidationError("project id is required")
	}
	if len(batch) == 0 {
		return &entities.AdmitResult{}, nil
	}
	if s.maxBatchSize > 0 && len(batch) > s.maxBatchSize {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("batch size %d exceeds maximum %d", len(batch), s.maxBatchSize))
	}

	result := &entities.AdmitResult{Total: len(batch)}
	candidates := make([]*entities.Event, 0, len(batch))
	funnelSeen := make(map[string]map[string]bool)

	for i, raw := range batch {
		event, err := s.prepare(ctx, projectID, raw, funnelSeen)
		if err != nil {
			result.Errors = append(result.Errors, entities.AdmitError{Index: i, Message: err.Error()})
			continue
		}
		candidates = append(candidates, event)
	}

	if len(candidates) > 0 {
		inserted, err := s.events.InsertBatch(ctx, candidates)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		result.Accepted = len(inserted)
		result.Skipped = len(candidates) - len(inserted)

		s.notifyDays(projectID, inserted)
	}

	observability.RecordIngestMetric(ctx, s.metrics, projectID, result.Accepted, result.Skipped, result.Total)
	observability.LoggerFromContext(ctx).Debug().
		Str("project_id", projectID).
		Int("total", result.Total).
		Int("accepted", result.Accepted).
		Int("skipped", result.Skipped).
		Int("rejected", len(result.Errors)).
		Msg("Admitted event batch")

	return result, nil
}

// prepare turns a raw ingest event into a storable row: parse the timestamp,
// resolve the visitor identity, validate funnel attribution and derive the
// idempotency key.
func (s *IngestionService) prepare(ctx context.Context, projectID string, raw entities.IngestEvent, funnelSeen map[string]map[string]bool) (*entities.Event, error) {
	if raw.PageURL == "" {
		return nil, fmt.Errorf("page url is required")
	}
	occurredAt, err := time.Parse(time.RFC3339, raw.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("invalid occurred_at %q: must be RFC 3339", raw.OccurredAt)
	}
	occurredAt = occurredAt.UTC()

	funnelID, stepKey := raw.FunnelID, raw.StepKey
	if funnelID != "" && stepKey != "" {
		stepKeys, checked := funnelSeen[funnelID]
		if !checked {
			stepKeys = s.funnelStepKeys(ctx, projectID, funnelID)
			funnelSeen[funnelID] = stepKeys
		}
		if !stepKeys[stepKey] {
			// Unknown funnel or step: keep the event, drop the attribution.
			funnelID, stepKey = "", ""
		}
	} else if funnelID != "" || stepKey != "" {
		// Half an attribution is no attribution.
		funnelID, stepKey = "", ""
	}

	id := uuid.New().String()
	userHash := identity.HashIdentifier(raw.UserID)
	sessionHash := identity.HashIdentifier(raw.SessionID)
	anonHash := identity.HashIdentifier(raw.AnonID)
	visitorKey := identity.ResolveVisitorKey(raw.UserID, raw.SessionID, id)

	idempotencyKey := raw.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = identity.DeriveIdempotencyKey(
			raw.OccurredAt, raw.PageURL, raw.Path, visitorKey, funnelID, stepKey)
	}

	event := &entities.Event{
		ID:             id,
		ProjectID:      projectID,
		OccurredAt:     occurredAt,
		PageURL:        raw.PageURL,
		Path:           raw.Path,
		Referrer:       raw.Referrer,
		SessionHash:    sessionHash,
		UserHash:       userHash,
		AnonHash:       anonHash,
		VisitorKey:     visitorKey,
		FunnelID:       funnelID,
		StepKey:        stepKey,
		Metadata:       raw.Metadata,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	return event, nil
}

// funnelStepKeys loads the funnel's step-key set, or nil when the funnel
// does not exist for the project. Attribution is kept only when both the
// funnel and the step check out.
func (s *IngestionService) funnelStepKeys(ctx context.Context, projectID, funnelID string) map[string]bool {
	funnel, err := s.funnels.GetByID(ctx, projectID, funnelID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			log.Warn().Err(err).
				Str("project_id", projectID).
				Str("funnel_id", funnelID).
				Msg("Funnel lookup failed, dropping attribution")
		}
		return nil
	}
	if funnel == nil {
		return nil
	}
	keys := make(map[string]bool, len(funnel.Steps))
	for _, step := range funnel.Steps {
		keys[step.Key] = true
	}
	return keys
}

// notifyDays tells the scheduler which dates gained events. Only accepted
// rows count: skipped duplicates already contributed to their day.
func (s *IngestionService) notifyDays(projectID string, inserted []*entities.Event) {
	if s.notifier == nil {
		return
	}
	seen := make(map[entities.Day]bool)
	for _, event := range inserted {
		day := entities.DayOf(event.OccurredAt)
		if !seen[day] {
			seen[day] = true
			s.notifier.Notify(projectID, day)
		}
	}
}
