package cache

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lborres/portal/core"
)

var _ core.CacheWithStats = (*InMemoryCache)(nil)

// InMemoryCache is a per-process permission cache with LRU eviction and TTL.
type InMemoryCache struct {
	lru *expirable.LRU[core.Role, []string]
	ttl time.Duration

	// counters
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	cleared atomic.Int64
	// removed counts every onEvict callback; the LRU also fires it on
	// Remove and Purge, so those are subtracted in Stats.
	removed atomic.Int64
}

// NewInMemoryCache creates a new in-memory cache
func NewInMemoryCache(c core.CacheConfig) *InMemoryCache {
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxSize == 0 {
		c.MaxSize = 16
	}

	cache := &InMemoryCache{ttl: c.TTL}
	cache.lru = expirable.NewLRU[core.Role, []string](c.MaxSize, func(core.Role, []string) {
		cache.removed.Add(1)
	}, c.TTL)
	return cache
}

// Get returns a copy of the cached permissions for role.
func (c *InMemoryCache) Get(_ context.Context, role core.Role) ([]string, error) {
	perms, ok := c.lru.Get(role)
	if !ok {
		c.misses.Add(1)
		return nil, core.ErrCacheNotFound
	}
	c.hits.Add(1)
	return slices.Clone(perms), nil
}

func (c *InMemoryCache) Set(_ context.Context, role core.Role, permissions []string) error {
	c.lru.Add(role, slices.Clone(permissions))
	c.sets.Add(1)
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, role core.Role) error {
	if c.lru.Remove(role) {
		c.deletes.Add(1)
	}
	return nil
}

func (c *InMemoryCache) Clear(_ context.Context) error {
	c.cleared.Add(int64(c.lru.Len()))
	c.lru.Purge()
	return nil
}

// Len returns the number of cached roles
func (c *InMemoryCache) Len() int {
	return c.lru.Len()
}

// Stats returns cache statistics
func (c *InMemoryCache) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.removed.Load() - c.deletes.Load() - c.cleared.Load(),
		Size:      c.Len(),
		TTL:       c.ttl,
	}
}
