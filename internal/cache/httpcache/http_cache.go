// Package httpcache stores whole HTTP responses in a cache.Cache, keyed by a
// hash of the request URL.
package httpcache

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wp-stream/stream-api-client/internal/cache"
)

// entryMagic starts every stored entry; the HTTP/1.x wire dump follows it
const entryMagic = "stream-response/1\n"

type HTTPCache struct {
	cache  cache.Cache
	prefix string
}

// New wraps c. Every generated key starts with prefix.
func New(c cache.Cache, prefix string) *HTTPCache {
	return &HTTPCache{
		cache:  c,
		prefix: prefix,
	}
}

// Key returns the deterministic cache key of a resolved request URL
func (d *HTTPCache) Key(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))
	return d.prefix + hex.EncodeToString(hash[:])
}

// SetKey stores resp under key. resp.Body stays readable afterwards.
func (d *HTTPCache) SetKey(ctx context.Context, key string, resp *http.Response, ttl time.Duration) error {
	data, err := encodeResponse(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := d.cache.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// GetKey returns the response stored under key, or nil, nil on a miss
func (d *HTTPCache) GetKey(ctx context.Context, key string) (*http.Response, error) {
	data, err := d.cache.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	if data == nil {
		return nil, nil // Cache miss
	}

	resp, err := decodeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}

	logrus.Debugf("Cache hit for key %s", key)
	return resp, nil
}

// DeleteKey drops the response stored under key
func (d *HTTPCache) DeleteKey(ctx context.Context, key string) error {
	if err := d.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

// Clear empties the underlying cache
func (d *HTTPCache) Clear(ctx context.Context) error {
	return d.cache.Clear(ctx)
}

// encodeResponse dumps the status line, headers and body of resp and
// replaces resp.Body with an unread copy.
func encodeResponse(resp *http.Response) ([]byte, error) {
	dump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, err
	}
	return append([]byte(entryMagic), dump...), nil
}

func decodeResponse(b []byte) (*http.Response, error) {
	wire, ok := bytes.CutPrefix(b, []byte(entryMagic))
	if !ok {
		return nil, fmt.Errorf("not a cached response entry")
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(wire)), nil)
}
