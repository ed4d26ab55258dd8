package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/kolade/sitewatch/backend/internal/domain/providers"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryAdapter implements the CacheProvider interface with an in-process
// map. Expiry is checked lazily on read, so an expired entry behaves as a
// miss even before it is physically evicted.
type MemoryAdapter struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryAdapter creates a new in-memory cache adapter
func NewMemoryAdapter() providers.CacheProvider {
	return &MemoryAdapter{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get retrieves a value from cache
func (a *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	entry, ok := a.entries[key]
	a.mu.RUnlock()

	if !ok || a.now().After(entry.expiresAt) {
		if ok {
			a.mu.Lock()
			delete(a.entries, key)
			a.mu.Unlock()
		}
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return entry.value, nil
}

// Set stores a value in cache with a TTL
func (a *MemoryAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[key] = memoryEntry{
		value:     value,
		expiresAt: a.now().Add(ttl),
	}
	return nil
}

// Delete removes a value from cache
func (a *MemoryAdapter) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, key)
	return nil
}

// DeletePattern removes every key matching a glob-style pattern
func (a *MemoryAdapter) DeletePattern(ctx context.Context, pattern string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key := range a.entries {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if matched {
			delete(a.entries, key)
		}
	}
	return nil
}

// Exists checks if a key exists in cache
func (a *MemoryAdapter) Exists(ctx context.Context, key string) (bool, error) {
	a.mu.RLock()
	entry, ok := a.entries[key]
	a.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return !a.now().After(entry.expiresAt), nil
}
