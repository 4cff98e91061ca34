package cache

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wp-stream/stream-api-client/internal/config"
)

// RedisNamespace prefixes every key written by the redis backend
const RedisNamespace = "stream:"

// FromConfig builds and initializes the configured cache backend
func FromConfig(cfg config.CacheConfig) (Cache, error) {
	var c Cache
	switch cfg.Backend {
	case config.BackendNone, "":
		c = NewNull()
	case config.BackendMemory:
		c = NewMemory()
	case config.BackendDisk:
		c = NewDisk(cfg.Folder)
	case config.BackendRedis:
		c = NewRedisFromConfig(cfg.Redis, RedisNamespace)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}

	if err := c.Init(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize %s cache: %w", cfg.Backend, err)
	}

	logrus.Debugf("Using %s cache backend", cfg.Backend)
	return c, nil
}
