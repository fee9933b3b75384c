package core

import (
	"context"
	"time"
)

// PermissionCache caches resolved permission names per role.
type PermissionCache interface {
	Get(ctx context.Context, role Role) ([]string, error)
	Set(ctx context.Context, role Role, permissions []string) error
	Delete(ctx context.Context, role Role) error
	Clear(ctx context.Context) error
}

type CacheWithStats interface {
	PermissionCache
	Stats() CacheStats
}

type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// CacheStats are simple counters for cache behavior.
// These are intended for diagnostics and monitoring.
type CacheStats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}
