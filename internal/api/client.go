// Package api is a client for the Stream API. GET responses may be cached in
// a keyed store, failures are collected in an error log on the client and
// decoded responses can be rewritten by registered response filters.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wp-stream/stream-api-client/internal/cache/httpcache"
	"github.com/wp-stream/stream-api-client/internal/credentials"
	"github.com/wp-stream/stream-api-client/internal/notify"
)

const (
	// DefaultBaseURL is the production Stream API
	DefaultBaseURL = "http://api.wp-stream.com"
	// APIKeyHeader carries the site's master key on every request
	APIKeyHeader = "stream-api-master-key"

	defaultTimeout = 30 * time.Second
)

// Client talks to the Stream API on behalf of one site
type Client struct {
	http     *http.Client
	timeout  time.Duration
	baseURL  string
	creds    credentials.Credentials
	cache    *httpcache.HTTPCache
	hooks    *Hooks
	notifier notify.Notifier
	errors   *ErrorLog
	log      logrus.FieldLogger
}

type Option func(*Client)

// WithBaseURL points the client at another API host
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithTimeout sets custom timeout. A client passed with WithHTTPClient is
// copied, never modified.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithCache enables response caching for GET requests
func WithCache(cache *httpcache.HTTPCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithNotifier sets who is told about transport failures
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// WithResponseFilter registers a filter run on every decoded response
func WithResponseFilter(f ResponseFilter) Option {
	return func(c *Client) {
		c.hooks.AddResponseFilter(f)
	}
}

// WithExtensions lets each extension register its hooks
func WithExtensions(exts ...Extension) Option {
	return func(c *Client) {
		for _, ext := range exts {
			ext.Register(c.hooks)
		}
	}
}

// WithLogger sets the logger used for request and cache diagnostics
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a client authenticating with creds
func New(creds credentials.Credentials, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: DefaultBaseURL,
		creds:   creds,
		hooks:   &Hooks{},
		errors:  &ErrorLog{},
		log:     logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.timeout > 0 && c.http.Timeout != c.timeout {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}

	c.baseURL = strings.TrimRight(c.baseURL, "/")
	if c.notifier == nil {
		c.notifier = notify.NewLogNotifier(c.log)
	}

	return c
}

// BaseURL returns the API root requests are sent to
func (c *Client) BaseURL() string { return c.baseURL }

// SiteID returns the configured site identifier, empty when absent
func (c *Client) SiteID() string { return c.creds.SiteID }

// Errors returns every failure recorded by this client, oldest first
func (c *Client) Errors() []ErrorDetail { return c.errors.Errors() }

// LastError returns the most recent recorded failure
func (c *Client) LastError() (ErrorDetail, bool) { return c.errors.Last() }

// HasSiteID reports whether site endpoints can be called
func (c *Client) HasSiteID() bool { return c.creds.HasSiteID() }
