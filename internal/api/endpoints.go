package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default cache lifetimes per endpoint
const (
	ValidateKeyTTL = 5 * time.Minute
	UserTTL        = 5 * time.Minute
	RecordTTL      = 30 * time.Second
	RecordsTTL     = 2 * time.Minute
)

type callOptions struct {
	allowCache bool
	ttl        time.Duration
}

// CallOption tunes caching of a single read call
type CallOption func(*callOptions)

// WithCaching enables or disables the cache for this call
func WithCaching(enabled bool) CallOption {
	return func(o *callOptions) {
		o.allowCache = enabled
	}
}

// WithTTL overrides how long this call's response stays cached
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		o.ttl = ttl
	}
}

func newCallOptions(ttl time.Duration, opts []CallOption) callOptions {
	o := callOptions{allowCache: true, ttl: ttl}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (c *Client) get(ctx context.Context, path string, args url.Values, ttl time.Duration, opts []CallOption) (any, error) {
	u, err := c.requestURL(path, args)
	if err != nil {
		return nil, err
	}
	o := newCallOptions(ttl, opts)
	return c.do(ctx, request{
		method:     http.MethodGet,
		url:        u,
		allowCache: o.allowCache,
		ttl:        o.ttl,
	})
}

// ValidateKey asks the API whether the configured key is valid
func (c *Client) ValidateKey(ctx context.Context, opts ...CallOption) (any, error) {
	return c.get(ctx, "/validate-key", nil, ValidateKeyTTL, opts)
}

// GetUser fetches a user by id
func (c *Client) GetUser(ctx context.Context, userID int64, opts ...CallOption) (any, error) {
	if userID <= 0 {
		return nil, ErrMissingUserID
	}
	return c.get(ctx, "/users/"+strconv.FormatInt(userID, 10), nil, UserTTL, opts)
}

// GetRecord fetches one record of the site, optionally limited to fields
func (c *Client) GetRecord(ctx context.Context, recordID string, fields []string, opts ...CallOption) (any, error) {
	if recordID == "" {
		return nil, ErrMissingRecordID
	}
	if !c.creds.HasSiteID() {
		return nil, ErrMissingSiteID
	}
	return c.get(ctx, c.recordsPath()+"/"+url.PathEscape(recordID), fieldArgs(fields), RecordTTL, opts)
}

// GetRecords lists the site's records, optionally limited to fields
func (c *Client) GetRecords(ctx context.Context, fields []string, opts ...CallOption) (any, error) {
	if !c.creds.HasSiteID() {
		return nil, ErrMissingSiteID
	}
	return c.get(ctx, c.recordsPath(), fieldArgs(fields), RecordsTTL, opts)
}

// NewRecord creates a record for the site. The site id is set on the sent
// copy of record; record itself is left untouched. Never cached.
func (c *Client) NewRecord(ctx context.Context, record map[string]any, fields []string) (any, error) {
	if !c.creds.HasSiteID() {
		return nil, ErrMissingSiteID
	}

	body := make(map[string]any, len(record)+1)
	for k, v := range record {
		body[k] = v
	}
	body["site_id"] = c.creds.SiteID

	u, err := c.requestURL(c.recordsPath(), fieldArgs(fields))
	if err != nil {
		return nil, err
	}
	return c.do(ctx, request{
		method: http.MethodPost,
		url:    u,
		body:   body,
	})
}

func (c *Client) recordsPath() string {
	return "/sites/" + url.PathEscape(c.creds.SiteID) + "/records"
}

func fieldArgs(fields []string) url.Values {
	var kept []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return url.Values{"fields": {strings.Join(kept, ",")}}
}
