package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DiskCache implements Cache interface for disk-based caching
type DiskCache struct {
	cacheDir string
}

// diskEntry is the on-disk envelope of a cached value
type diskEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewDisk creates a new disk cache
func NewDisk(cacheDir string) *DiskCache {
	return &DiskCache{
		cacheDir: cacheDir,
	}
}

// getPath maps a key to its file, refusing keys that escape the cache directory
func (d *DiskCache) getPath(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	path := filepath.Join(d.cacheDir, filepath.FromSlash(key)+".bin")
	rel, err := filepath.Rel(d.cacheDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path, nil
}

// Get retrieves cached data if it exists and is not expired
func (d *DiskCache) Get(ctx context.Context, key string) ([]byte, error) {
	cachePath, err := d.getPath(key)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(cachePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry diskEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Corrupt entry, treat as miss
		logrus.Warnf("Removing unreadable cache file %s: %v", cachePath, err)
		_ = os.Remove(cachePath)
		return nil, nil
	}

	if expired(entry.ExpiresAt) {
		// Cache expired, remove it
		if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
			logrus.Errorf("Failed to remove expired cache file %s: %v", cachePath, err)
		}
		return nil, nil
	}

	return entry.Data, nil
}

// Set stores data in the cache
func (d *DiskCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cachePath, err := d.getPath(key)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(diskEntry{Data: value, ExpiresAt: expiry(ttl)})
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return err
	}

	if err := os.WriteFile(cachePath, raw, 0644); err != nil {
		return err
	}

	logrus.Debugf("Cached %s (ttl %s)", cachePath, ttl)
	return nil
}

// Delete removes a cache file
func (d *DiskCache) Delete(ctx context.Context, key string) error {
	cachePath, err := d.getPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear removes the cache directory contents
func (d *DiskCache) Clear(ctx context.Context) error {
	if err := os.RemoveAll(d.cacheDir); err != nil {
		return err
	}
	return d.Init()
}

// Init ensures the cache directory exists
func (d *DiskCache) Init() error {
	return os.MkdirAll(d.cacheDir, 0755)
}

// Close does nothing for the disk cache
func (d *DiskCache) Close() error {
	return nil
}

var _ Cache = (*DiskCache)(nil)
