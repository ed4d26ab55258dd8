package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/providers"
	redisclient "github.com/kolade/sitewatch/backend/internal/infrastructure/clients/redis"
)

// RedisEventBus implements the EventBus interface using Redis Pub/Sub. It
// carries rollup-completion notifications between processes sharing the same
// Redis cache.
type RedisEventBus struct {
	client        *redisclient.Client
	subscriptions map[string]*redis.PubSub
	subscribers   map[string]map[chan *entities.RollupEvent]struct{}
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
		subscribers:   make(map[string]map[chan *entities.RollupEvent]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Publish publishes a rollup event to all subscribers of a channel
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.RollupEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rollup event: %w", err)
	}

	if err := b.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish rollup event: %w", err)
	}

	log.Debug().
		Str("channel", channel).
		Str("project_id", event.ProjectID).
		Int("dates", len(event.Dates)).
		Msg("published rollup event")
	return nil
}

// Subscribe subscribes to rollup events on a channel
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.RollupEvent, error) {
	b.mu.Lock()

	if _, exists := b.subscriptions[channel]; !exists {
		pubsub := b.client.Client().Subscribe(b.ctx, channel)
		b.subscriptions[channel] = pubsub
		go b.receiveMessages(channel, pubsub)
	}

	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.RollupEvent]struct{})
	}

	eventChan := make(chan *entities.RollupEvent, 100)
	b.subscribers[channel][eventChan] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.removeSubscriber(channel, eventChan)
	}()

	return eventChan, nil
}

// Close shuts down the bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	for channel, pubsub := range b.subscriptions {
		if err := pubsub.Close(); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to close subscription")
		}
		delete(b.subscriptions, channel)
	}

	return nil
}

// receiveMessages receives messages from Redis and broadcasts them to subscribers
func (b *RedisEventBus) receiveMessages(channel string, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event entities.RollupEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("failed to unmarshal rollup event")
				continue
			}

			b.mu.RLock()
			for subscriber := range b.subscribers[channel] {
				select {
				case subscriber <- &event:
				default:
					// Subscriber channel full, skip event
					log.Warn().
						Str("channel", channel).
						Str("event_id", event.ID).
						Msg("subscriber channel full, skipping rollup event")
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisEventBus) removeSubscriber(channel string, eventChan chan *entities.RollupEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[channel]
	if !exists {
		return
	}
	if _, ok := subscribers[eventChan]; !ok {
		return
	}

	delete(subscribers, eventChan)
	close(eventChan)

	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
		if pubsub, ok := b.subscriptions[channel]; ok {
			_ = pubsub.Close()
			delete(b.subscriptions, channel)
		}
	}
}
