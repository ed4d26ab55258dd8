package repositories

import (
	"context"
	"time"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
)

// EventFilter narrows raw-event listings.
type EventFilter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// EventRepository is the append-only raw event store. Rows are unique per
// (project_id, idempotency_key); inserts use conflict-skip semantics.
type EventRepository interface {
	// InsertBatch inserts events in a single statement with conflict-skip on
	// (project_id, idempotency_key) and returns the rows actually inserted.
	// Duplicates are silently omitted from the returned slice.
	InsertBatch(ctx context.Context, events []*entities.Event) ([]*entities.Event, error)

	// List returns a page of raw events for a project, newest first.
	List(ctx context.Context, projectID string, filter EventFilter) (*entities.EventPage, error)

	// DaysWithEvents returns the distinct UTC calendar dates that have at
	// least one event for the project in the given range, ascending. A nil
	// bound means unbounded on that side.
	DaysWithEvents(ctx context.Context, projectID string, from, to *time.Time) ([]entities.Day, error)

	// RealtimeSnapshot aggregates raw events since the given instant.
	RealtimeSnapshot(ctx context.Context, projectID string, since time.Time) (*entities.RealtimeSnapshot, error)

	// CountStepVisitors returns, per step key, the number of distinct visitor
	// keys whose events in range carry the given funnel attribution. A nil
	// bound means unbounded on that side.
	CountStepVisitors(ctx context.Context, projectID, funnelID string, from, to *time.Time) (map[string]int64, error)
}
