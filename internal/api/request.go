package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wp-stream/stream-api-client/internal/notify"
)

// Status codes which indicate a successful request
var successStatusCodes = map[int]bool{
	http.StatusOK:        true,
	http.StatusCreated:   true,
	http.StatusNoContent: true,
}

type request struct {
	method     string
	url        string
	body       any
	allowCache bool
	ttl        time.Duration
}

// requestURL joins the base URL, path and query args into an escaped URL.
// Path segments must already be escaped by the caller.
func (c *Client) requestURL(path string, args url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafeURL, u.Redacted())
	}

	if len(args) > 0 {
		q := u.Query()
		for k, values := range args {
			for _, v := range values {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func (c *Client) headers(hasBody bool) http.Header {
	h := http.Header{}
	h.Set(APIKeyHeader, c.creds.APIKey)
	h.Set("Accept", "application/json")
	if hasBody {
		h.Set("Content-Type", "application/json")
	}
	return h
}

// do performs r, serving and filling the cache for cacheable GETs, and turns
// the response into decoded data or an error. Any failure drops the cached
// response for r.url.
func (c *Client) do(ctx context.Context, r request) (any, error) {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = b
	}

	args := RequestArgs{
		Method: r.method,
		Header: c.headers(payload != nil),
		Body:   payload,
	}
	log := c.log.WithFields(logrus.Fields{"method": r.method, "url": r.url})

	status, body, err := c.fetch(ctx, r, args, log)
	if err != nil {
		c.errors.add(ErrorDetail{Method: r.method, URL: r.url, TransportError: err.Error()})
		c.notifier.Notify(ctx, notify.Notice{
			Level:   notify.LevelError,
			Title:   "Stream API Error.",
			Message: err.Error() + ".",
		})
		c.invalidate(ctx, r.url, log)
		log.WithError(err).Warn("Stream API request failed")
		return nil, &TransportError{Method: r.method, URL: r.url, Err: err}
	}

	data := decode(body, log)
	data = c.hooks.filterResponse(data, r.url, args)

	if successStatusCodes[status] {
		return data, nil
	}

	herr := &HTTPError{
		Method:     r.method,
		URL:        r.url,
		StatusCode: status,
		APIError:   apiError(data),
	}
	c.errors.add(ErrorDetail{
		Method:   r.method,
		URL:      r.url,
		HTTPCode: herr.StatusCode,
		APIError: herr.APIError,
	})
	c.invalidate(ctx, r.url, log)
	log.WithField("status", status).Warn("Stream API returned an error status")
	return nil, herr
}

// fetch returns the status and body for r, from the cache when allowed
func (c *Client) fetch(ctx context.Context, r request, args RequestArgs, log logrus.FieldLogger) (int, []byte, error) {
	cacheable := r.method == http.MethodGet && r.allowCache && c.cache != nil

	var key string
	if cacheable {
		key = c.cache.Key(r.url)
		if status, body, ok := c.cached(ctx, key, log); ok {
			return status, body, nil
		}
	}

	var reqBody io.Reader
	if args.Body != nil {
		reqBody = bytes.NewReader(args.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header = args.Header.Clone()

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	log.WithField("status", resp.StatusCode).Debug("Stream API request")

	if cacheable {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if err := c.cache.SetKey(ctx, key, resp, r.ttl); err != nil {
			log.WithError(err).Warn("Failed to cache response")
		}
	}

	return resp.StatusCode, body, nil
}

// cached looks key up. Cache failures count as misses.
func (c *Client) cached(ctx context.Context, key string, log logrus.FieldLogger) (int, []byte, bool) {
	resp, err := c.cache.GetKey(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Failed to read cached response")
		return 0, nil, false
	}
	if resp == nil {
		return 0, nil, false
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("Failed to read cached response body")
		return 0, nil, false
	}

	log.Debug("Serving from cache")
	return resp.StatusCode, body, true
}

func (c *Client) invalidate(ctx context.Context, rawURL string, log logrus.FieldLogger) {
	if c.cache == nil {
		return
	}
	if err := c.cache.DeleteKey(ctx, c.cache.Key(rawURL)); err != nil {
		log.WithError(err).Warn("Failed to drop cached response")
	}
}

// decode tolerates bodies that are empty or not JSON; they decode to nil
func decode(body []byte, log logrus.FieldLogger) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var data any
	if err := DecodeJSON(body, &data); err != nil {
		log.WithError(err).Debug("Response body is not JSON")
		return nil
	}
	return data
}

// DecodeJSON decodes a single JSON value from b into v. Numbers are kept as
// json.Number so 64-bit integers survive.
func DecodeJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// apiError extracts the "error" field of an object response
func apiError(data any) string {
	obj, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	v, ok := obj["error"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
