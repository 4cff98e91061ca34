// Handles expiring key-value storage of cached API responses
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidKey is returned for keys a backend cannot store
var ErrInvalidKey = errors.New("invalid cache key")

// Cache interface for caching operations
type Cache interface {
	// retrieves cached data if it exists and is not expired.
	// returns nil, nil when not found or expired
	Get(ctx context.Context, key string) ([]byte, error)
	// stores data under key. A ttl <= 0 never expires
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// removes key. Deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// removes every entry owned by this cache
	Clear(ctx context.Context) error
	// initializes the cache (e.g., creates necessary directories)
	Init() error
	// releases backend resources
	Close() error
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func expired(expiresAt time.Time) bool {
	return !expiresAt.IsZero() && time.Now().After(expiresAt)
}
