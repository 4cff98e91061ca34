package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables overriding file values.
// Nested keys are separated by a double underscore, e.g.
// STREAM_CREDENTIALS__API_KEY sets credentials.api_key.
const EnvPrefix = "STREAM_"

// Cache backends
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendRedis  = "redis"
)

// Config represents the application configuration
type Config struct {
	API         APIConfig         `koanf:"api" yaml:"api"`
	Credentials CredentialsConfig `koanf:"credentials" yaml:"credentials"`
	Cache       CacheConfig       `koanf:"cache" yaml:"cache"`
	Log         LogConfig         `koanf:"log" yaml:"log"`
}

// APIConfig contains the remote API endpoint settings
type APIConfig struct {
	URL     string `koanf:"url" yaml:"url" validate:"required,url"`
	Timeout string `koanf:"timeout" yaml:"timeout" validate:"required"`
}

// CredentialsConfig holds the persisted site credentials. SiteUUID is
// normally a UUID; legacy site ids are accepted as they are.
type CredentialsConfig struct {
	APIKey   string `koanf:"api_key" yaml:"api_key"`
	SiteUUID string `koanf:"site_uuid" yaml:"site_uuid"`
}

// CacheConfig contains cache-related configuration
type CacheConfig struct {
	Backend string      `koanf:"backend" yaml:"backend" validate:"oneof=none memory disk redis"`
	Prefix  string      `koanf:"prefix" yaml:"prefix"`
	Folder  string      `koanf:"folder" yaml:"folder"`
	Redis   RedisConfig `koanf:"redis" yaml:"redis"`
}

// RedisConfig contains the connection settings of the redis backend
type RedisConfig struct {
	Addr     string `koanf:"addr" yaml:"addr"`
	Password string `koanf:"password" yaml:"password"`
	DB       int    `koanf:"db" yaml:"db" validate:"min=0"`
}

// LogConfig controls logrus output
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		API: APIConfig{
			URL:     "http://api.wp-stream.com",
			Timeout: "30s",
		},
		Cache: CacheConfig{
			Backend: BackendDisk,
			Prefix:  "wp_stream_",
			Folder:  "./.stream-cache",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the optional file at path
// (YAML or TOML, by extension) and STREAM_* environment variables, in that order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	var config Config
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &config, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return tomlParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported config file type: %s", path)
	}
}

// STREAM_CACHE__REDIS__ADDR -> cache.redis.addr
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// GetTimeout parses and returns the HTTP client timeout
func (c *Config) GetTimeout() (time.Duration, error) {
	return time.ParseDuration(c.API.Timeout)
}

var validate = validator.New()

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	timeout, err := c.GetTimeout()
	if err != nil {
		return fmt.Errorf("invalid API timeout format: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("API timeout must be positive, got: %s", c.API.Timeout)
	}

	switch c.Cache.Backend {
	case BackendDisk:
		if c.Cache.Folder == "" {
			return fmt.Errorf("cache folder is required for the disk backend")
		}
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	}

	return nil
}

// Redacted returns a copy safe to print
func (c Config) Redacted() Config {
	if c.Credentials.APIKey != "" {
		c.Credentials.APIKey = "********"
	}
	if c.Cache.Redis.Password != "" {
		c.Cache.Redis.Password = "********"
	}
	return c
}
