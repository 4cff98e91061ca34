package cache

import (
	"context"
	"time"
)

// NullCache never stores anything. Used when caching is disabled.
type NullCache struct{}

// NewNull creates a null cache
func NewNull() *NullCache {
	return &NullCache{}
}

func (NullCache) Get(ctx context.Context, key string) ([]byte, error) { return nil, nil }

func (NullCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (NullCache) Delete(ctx context.Context, key string) error { return nil }
func (NullCache) Clear(ctx context.Context) error              { return nil }
func (NullCache) Init() error                                  { return nil }
func (NullCache) Close() error                                 { return nil }

var _ Cache = (*NullCache)(nil)
