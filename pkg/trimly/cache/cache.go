// Package cache provides the fast lookup tier for redirects. Entries are a
// disposable projection of store rows; every code path must keep working,
// just slower, when the cache is cold or unreachable.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is not present.
var ErrMiss = errors.New("cache: key not found")

// Cache is the key-value contract the redirect path depends on.
// Implementations must treat Set and Del as best-effort from the caller's
// point of view: the store, not the cache, is the source of truth.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// LinkKey returns the cache key for a short code.
func LinkKey(shortCode string) string {
	return "link:" + shortCode
}
