package providers

import (
	"context"
	"time"
)

// CacheProvider defines the interface for caching operations. Implementations
// must treat expired entries as absent even when they have not been physically
// evicted yet.
type CacheProvider interface {
	// Get retrieves a value from cache. A miss is reported as an error.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching a glob-style pattern.
	DeletePattern(ctx context.Context, pattern string) error

	// Exists checks if a key exists in cache.
	Exists(ctx context.Context, key string) (bool, error)
}
