package journal

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/scitrue/internal/cache"
	"github.com/ppiankov/scitrue/internal/model"
)

const cacheNamespace = "journal"

// cachedResult records hits and misses so repeated unknown venues do not
// re-query the backend
type cachedResult struct {
	Found   bool                `json:"found"`
	Metrics *model.MetricsBlock `json:"metrics,omitempty"`
}

// CachedLookup memoizes another lookup in a layered memory+disk cache.
// Errors other than ErrNotFound are not cached.
type CachedLookup struct {
	next  Lookup
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedLookup wraps next; an empty dir keeps the cache in memory only
func NewCachedLookup(next Lookup, memoryTTL time.Duration, dir string, diskTTL time.Duration) *CachedLookup {
	return &CachedLookup{
		next:  next,
		cache: cache.NewLayeredCache(memoryTTL, dir, diskTTL),
	}
}

// NewCachedLookupWith wraps next with an existing cache
func NewCachedLookupWith(next Lookup, c cache.Cache, ttl time.Duration) *CachedLookup {
	return &CachedLookup{next: next, cache: c, ttl: ttl}
}

func (c *CachedLookup) Lookup(ctx context.Context, name string) (*model.MetricsBlock, error) {
	key := cache.Key(cacheNamespace, NormalizeName(name))

	var cached cachedResult
	if cache.GetJSON(c.cache, key, &cached) {
		if !cached.Found {
			return nil, ErrNotFound
		}
		return cached.Metrics, nil
	}

	metrics, err := c.next.Lookup(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		_ = cache.SetJSON(c.cache, key, cachedResult{Found: false}, c.ttl)
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}

	_ = cache.SetJSON(c.cache, key, cachedResult{Found: true, Metrics: metrics}, c.ttl)
	return metrics, nil
}

// Forget drops the cached result for name, hit or miss
func (c *CachedLookup) Forget(name string) error {
	return c.cache.Delete(cache.Key(cacheNamespace, NormalizeName(name)))
}

// Purge drops every cached result
func (c *CachedLookup) Purge() error {
	return c.cache.Clear()
}
