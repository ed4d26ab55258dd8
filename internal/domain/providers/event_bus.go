package providers

import (
	"context"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
)

// EventChannelRollupUpdates carries notifications that a project's daily
// rollups were rebuilt.
const EventChannelRollupUpdates = "rollup:updates"

// EventBus defines the interface for publishing and subscribing to rollup
// events across processes.
type EventBus interface {
	// Publish publishes an event to all subscribers of a channel.
	Publish(ctx context.Context, channel string, event *entities.RollupEvent) error

	// Subscribe subscribes to events on a channel.
	Subscribe(ctx context.Context, channel string) (<-chan *entities.RollupEvent, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}
