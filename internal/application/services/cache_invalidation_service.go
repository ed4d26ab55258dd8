package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/providers"
)

// CacheInvalidationService listens for rollup updates published by other
// instances and drops the local cached stats for the affected projects.
// Together with the event bus it keeps a multi-instance deployment's caches
// from serving pre-rebuild data past the TTL.
type CacheInvalidationService struct {
	bus         providers.EventBus
	invalidator ProjectInvalidator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCacheInvalidationService creates the service.
func NewCacheInvalidationService(bus providers.EventBus, invalidator ProjectInvalidator) *CacheInvalidationService {
	return &CacheInvalidationService{
		bus:         bus,
		invalidator: invalidator,
	}
}

// Start subscribes to rollup updates and begins processing them in the
// background until Stop is called or ctx is cancelled.
func (s *CacheInvalidationService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	events, err := s.bus.Subscribe(ctx, providers.EventChannelRollupUpdates)
	if err != nil {
		s.cancel()
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, events)
	}()

	log.Info().Msg("Cache invalidation service started")
	return nil
}

// Stop cancels the subscription and waits for the worker to exit.
func (s *CacheInvalidationService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Info().Msg("Cache invalidation service stopped")
}

func (s *CacheInvalidationService) run(ctx context.Context, events <-chan *entities.RollupEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			if err := s.invalidator.InvalidateProject(ctx, event.ProjectID); err != nil {
				log.Warn().Err(err).
					Str("project_id", event.ProjectID).
					Str("event_id", event.ID).
					Msg("Failed to invalidate stats cache from rollup update")
				continue
			}
			log.Debug().
				Str("project_id", event.ProjectID).
				Int("dates", len(event.Dates)).
				Msg("Invalidated stats cache from rollup update")
		}
	}
}
