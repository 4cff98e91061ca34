package tests

import (
	"context"
	"time"

	"github.com/wp-stream/stream-api-client/internal/api"
	"github.com/wp-stream/stream-api-client/internal/cache"
	"github.com/wp-stream/stream-api-client/internal/cache/httpcache"
	"github.com/wp-stream/stream-api-client/internal/config"
	"github.com/wp-stream/stream-api-client/internal/credentials"
	"github.com/wp-stream/stream-api-client/internal/fakeapi"
	"github.com/wp-stream/stream-api-client/internal/notify"
)

const (
	testKey  = "integration-key"
	testSite = "0b6e1f3c-94a2-4d7e-8c15-3f2a9d6b7e40"
)

// fixture_upstream creates a fake Stream API with one user and one record
func fixture_upstream() *fakeapi.Server {
	srv := fakeapi.NewServer(testKey)
	srv.AddUser(1, map[string]any{"name": "admin", "role": "administrator"})
	srv.AddRecord(testSite, map[string]any{"id": "rec-1", "summary": "Hello from upstream"})
	return srv
}

// fixture_config creates a test config using a disk cache in tempDir
func fixture_config(upstreamURL, tempDir string) *config.Config {
	cfg := config.Default()
	cfg.API.URL = upstreamURL
	cfg.API.Timeout = "10s"
	cfg.Credentials.APIKey = testKey
	cfg.Credentials.SiteUUID = testSite
	cfg.Cache.Folder = tempDir
	return &cfg
}

// fixture_client builds the cache and client described by cfg, the way
// streamctl does. Notices are queued on the returned recorder.
func fixture_client(cfg *config.Config) (*api.Client, cache.Cache, *notify.Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	backend, err := cache.FromConfig(cfg.Cache)
	if err != nil {
		return nil, nil, nil, err
	}

	creds, err := credentials.FromConfig(cfg).Load(context.Background())
	if err != nil {
		return nil, nil, nil, err
	}

	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, nil, nil, err
	}

	recorder := &notify.Recorder{}
	client := api.New(creds,
		api.WithBaseURL(cfg.API.URL),
		api.WithTimeout(timeout),
		api.WithCache(httpcache.New(backend, cfg.Cache.Prefix)),
		api.WithNotifier(recorder),
	)
	return client, backend, recorder, nil
}

func shortTTL() api.CallOption {
	return api.WithTTL(50 * time.Millisecond)
}
