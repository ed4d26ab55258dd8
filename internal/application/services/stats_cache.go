package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kolade/sitewatch/backend/internal/domain/providers"
)

// Cache namespaces for the stats readers.
const (
	cacheNamespaceOverview = "overview"
	cacheNamespacePages    = "pages"
)

// StatsCache is the short-TTL read cache in front of the aggregation store.
// Keys are stats:<namespace>:<project>:<fingerprint>, where the fingerprint
// is a digest of the canonical JSON of the query parameters, so equivalent
// queries hit the same entry regardless of field ordering. Invalidation is
// per project across all namespaces.
type StatsCache struct {
	provider providers.CacheProvider
	ttl      time.Duration
}

// NewStatsCache creates a stats cache over a cache provider. A nil provider
// yields a cache where every lookup misses.
func NewStatsCache(provider providers.CacheProvider, ttl time.Duration) *StatsCache {
	return &StatsCache{
		provider: provider,
		ttl:      ttl,
	}
}

// Get looks up a cached result and unmarshals it into dest. It returns false
// on any miss, expiry or decode failure.
func (c *StatsCache) Get(ctx context.Context, namespace, projectID string, params interface{}, dest interface{}) bool {
	if c == nil || c.provider == nil {
		return false
	}

	key, err := c.key(namespace, projectID, params)
	if err != nil {
		return false
	}

	data, err := c.provider.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false
	}
	return true
}

// Put stores a computed result. Failures are swallowed; the cache is an
// optimization, never a source of truth.
func (c *StatsCache) Put(ctx context.Context, namespace, projectID string, params interface{}, value interface{}) {
	if c == nil || c.provider == nil {
		return
	}

	key, err := c.key(namespace, projectID, params)
	if err != nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.provider.Set(ctx, key, data, c.ttl)
}

// InvalidateProject removes every cached entry for the project, regardless of
// namespace. Called once per project after a flush cycle commits all of its
// rebuilt dates.
func (c *StatsCache) InvalidateProject(ctx context.Context, projectID string) error {
	if c == nil || c.provider == nil {
		return nil
	}
	pattern := fmt.Sprintf("stats:*:%s:*", projectID)
	return c.provider.DeletePattern(ctx, pattern)
}

func (c *StatsCache) key(namespace, projectID string, params interface{}) (string, error) {
	fingerprint, err := fingerprintParams(params)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("stats:%s:%s:%s", namespace, projectID, fingerprint), nil
}

// fingerprintParams produces a stable digest of the query parameters. Params
// are marshaled, decoded into a generic map and re-marshaled, which sorts
// object keys and makes the serialization independent of struct field order.
func fingerprintParams(params interface{}) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
