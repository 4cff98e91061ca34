// Package credentials supplies the API key and site identifier used to
// authenticate against the Stream API.
package credentials

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wp-stream/stream-api-client/internal/config"
)

// Credentials identify a site to the Stream API. Empty fields are absent.
type Credentials struct {
	APIKey string
	SiteID string
}

// HasAPIKey reports whether an API key is configured
func (c Credentials) HasAPIKey() bool { return c.APIKey != "" }

// HasSiteID reports whether a site identifier is configured
func (c Credentials) HasSiteID() bool { return c.SiteID != "" }

// Redacted returns the API key with all but its first four characters masked
func (c Credentials) Redacted() string {
	if len(c.APIKey) <= 4 {
		return strings.Repeat("*", len(c.APIKey))
	}
	return c.APIKey[:4] + strings.Repeat("*", len(c.APIKey)-4)
}

// Store loads credentials from persistent configuration.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
}

type staticStore struct {
	creds Credentials
}

// Static returns a Store that always yields creds
func Static(creds Credentials) Store {
	return &staticStore{creds: creds}
}

func (s *staticStore) Load(ctx context.Context) (Credentials, error) {
	return normalize(s.creds), nil
}

type configStore struct {
	cfg config.CredentialsConfig
}

// FromConfig returns a Store reading the api_key and site_uuid settings
func FromConfig(cfg *config.Config) Store {
	return &configStore{cfg: cfg.Credentials}
}

func (s *configStore) Load(ctx context.Context) (Credentials, error) {
	return normalize(Credentials{
		APIKey: s.cfg.APIKey,
		SiteID: s.cfg.SiteUUID,
	}), nil
}

func normalize(c Credentials) Credentials {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.SiteID = strings.TrimSpace(c.SiteID)
	if c.SiteID == "" {
		return c
	}

	id, err := uuid.Parse(c.SiteID)
	if err != nil {
		logrus.Warnf("Site identifier %q is not a UUID, using it verbatim", c.SiteID)
		return c
	}
	c.SiteID = id.String()
	return c
}
