package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache implements Cache interface in process memory
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-memory cache
func NewMemory() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if expired(entry.expiresAt) {
		m.mu.Lock()
		// Re-check, a concurrent Set may have refreshed it
		if current, ok := m.entries[key]; ok && expired(current.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, nil
	}

	return append([]byte(nil), entry.data...), nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{
		data:      append([]byte(nil), value...),
		expiresAt: expiry(ttl),
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryCache) Init() error  { return nil }
func (m *MemoryCache) Close() error { return nil }

var _ Cache = (*MemoryCache)(nil)
