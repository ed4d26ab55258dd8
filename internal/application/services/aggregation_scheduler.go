package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
)

// DayRebuilder rebuilds the rollups for one (project, date) pair.
// Implemented by the rollup service.
type DayRebuilder interface {
	RebuildDate(ctx context.Context, projectID string, day entities.Day) error
}

// ProjectInvalidator drops cached stats for a project after its rollups
// change. Implemented by the stats cache.
type ProjectInvalidator interface {
	InvalidateProject(ctx context.Context, projectID string) error
}

// AggregationScheduler coalesces rebuild demand. Ingestion notifies it for
// every (project, date) an accepted batch touches; instead of rebuilding
// immediately, the scheduler collects the pairs into a pending set and
// flushes it once, after a short delay. A burst of notifications for the
// same pair therefore costs one rebuild, not thousands.
type AggregationScheduler struct {
	rebuilder   DayRebuilder
	invalidator ProjectInvalidator
	delay       time.Duration

	mu        sync.Mutex
	pending   map[string]map[entities.Day]bool
	scheduled bool
	timer     *time.Timer
	closed    bool

	// runMu serializes flush cycles so an overlapping timer fire never
	// rebuilds concurrently with a running flush.
	runMu sync.Mutex
	wg    sync.WaitGroup
}

// NewAggregationScheduler creates a scheduler that flushes pending work
// delay after the first notification of a cycle.
func NewAggregationScheduler(rebuilder DayRebuilder, invalidator ProjectInvalidator, delay time.Duration) *AggregationScheduler {
	return &AggregationScheduler{
		rebuilder:   rebuilder,
		invalidator: invalidator,
		delay:       delay,
		pending:     make(map[string]map[entities.Day]bool),
	}
}

// Notify records that a project gained events on a date. The first call of a
// cycle arms the flush timer; subsequent calls merge into the pending set.
// Safe for concurrent use. Notifications after Close are dropped.
func (s *AggregationScheduler) Notify(projectID string, day entities.Day) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	days, ok := s.pending[projectID]
	if !ok {
		days = make(map[entities.Day]bool)
		s.pending[projectID] = days
	}
	days[day] = true

	if !s.scheduled {
		s.scheduled = true
		s.wg.Add(1)
		s.timer = time.AfterFunc(s.delay, func() {
			defer s.wg.Done()
			s.flush()
		})
	}
}

// Flush runs a flush cycle immediately, synchronously. Mainly for shutdown
// paths and tests; the timer normally drives flushing.
func (s *AggregationScheduler) Flush() {
	s.mu.Lock()
	if s.scheduled && s.timer != nil && s.timer.Stop() {
		s.scheduled = false
		s.wg.Done()
	}
	s.mu.Unlock()
	s.flush()
}

// Close stops the scheduler and drains any pending work. After Close
// returns, no rebuilds are running and further notifications are ignored.
func (s *AggregationScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.scheduled && s.timer != nil && s.timer.Stop() {
		s.scheduled = false
		s.wg.Done()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.flush()
}

// flush snapshots and clears the pending set, then rebuilds every (project,
// date) pair in it, dates ascending. A notification arriving mid-flush
// lands in a fresh pending set and gets its own cycle. Per-pair failures are logged and do
// not block the rest of the set; a project with any failed date keeps its
// cache, so readers see stale-but-consistent data until the retry.
func (s *AggregationScheduler) flush() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]map[entities.Day]bool)
	s.scheduled = false
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx := context.Background()
	for projectID, days := range batch {
		ordered := make([]entities.Day, 0, len(days))
		for day := range days {
			ordered = append(ordered, day)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

		failed := 0
		for _, day := range ordered {
			if err := s.rebuilder.RebuildDate(ctx, projectID, day); err != nil {
				failed++
				log.Error().Err(err).
					Str("project_id", projectID).
					Str("date", string(day)).
					Msg("Rollup rebuild failed")
			}
		}
		if failed > 0 {
			continue
		}
		if s.invalidator != nil {
			if err := s.invalidator.InvalidateProject(ctx, projectID); err != nil {
				log.Warn().Err(err).
					Str("project_id", projectID).
					Msg("Stats cache invalidation failed")
			}
		}
	}
}
