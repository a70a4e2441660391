package cache

import (
	"context"
	"time"
)

// Cache stores serialized search responses. The in-process MemoryCache serves
// single-instance deployments; RedisCache is shared across instances.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error

	// Kind names the backend for stats output.
	Kind() string

	// Close releases the backend's resources.
	Close() error
}

// CacheError is a sentinel error type for cache lookups.
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)
