package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wp-stream/stream-api-client/internal/cache"
	"github.com/wp-stream/stream-api-client/internal/cache/httpcache"
	"github.com/wp-stream/stream-api-client/internal/cache/mock_cache"
	"github.com/wp-stream/stream-api-client/internal/credentials"
	"github.com/wp-stream/stream-api-client/internal/fakeapi"
	"github.com/wp-stream/stream-api-client/internal/notify"
	"github.com/wp-stream/stream-api-client/internal/notify/mock_notify"
)

const (
	testKey  = "test-key"
	testSite = "6f1c8a4e-2b7d-4c39-9e51-0a3b5d7f9c21"
)

// fixture_server starts a fake Stream API closed at the end of the test
func fixture_server(t *testing.T) *fakeapi.Server {
	srv := fakeapi.NewServer(testKey)
	t.Cleanup(srv.Close)
	return srv
}

// fixture_client creates a client for srv backed by a memory cache
func fixture_client(srv *fakeapi.Server, siteID string, opts ...Option) (*Client, *cache.MemoryCache) {
	mem := cache.NewMemory()
	base := []Option{
		WithBaseURL(srv.URL),
		WithCache(httpcache.New(mem, "wp_stream_")),
		WithNotifier(notify.Discard),
	}
	c := New(credentials.Credentials{APIKey: testKey, SiteID: siteID}, append(base, opts...)...)
	return c, mem
}

func TestValidateKey(t *testing.T) {
	srv := fixture_server(t)
	client, _ := fixture_client(srv, testSite)

	data, err := client.ValidateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"valid": true}, data)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, testKey, reqs[0].APIKey)
	assert.Empty(t, client.Errors())
}

func TestResponsesAreCached(t *testing.T) {
	srv := fixture_server(t)
	srv.AddUser(7, map[string]any{"a": 1})
	client, mem := fixture_client(srv, testSite)

	first, err := client.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": json.Number("1")}, first)
	assert.Equal(t, 1, mem.Len())

	second, err := client.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1, srv.Hits(http.MethodGet, "/users/7"))
}

func TestWithCachingDisabled(t *testing.T) {
	srv := fixture_server(t)
	client, mem := fixture_client(srv, testSite)

	for i := 0; i < 2; i++ {
		_, err := client.ValidateKey(context.Background(), WithCaching(false))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, srv.Hits(http.MethodGet, "/validate-key"))
	assert.Equal(t, 0, mem.Len())
}

func TestWithTTL(t *testing.T) {
	srv := fixture_server(t)
	client, _ := fixture_client(srv, testSite)

	_, err := client.ValidateKey(context.Background(), WithTTL(20*time.Millisecond))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = client.ValidateKey(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, srv.Hits(http.MethodGet, "/validate-key"))
}

func TestWithoutCache(t *testing.T) {
	srv := fixture_server(t)
	client := New(credentials.Credentials{APIKey: testKey}, WithBaseURL(srv.URL+"/"))

	for i := 0; i < 2; i++ {
		_, err := client.ValidateKey(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, srv.Hits(http.MethodGet, "/validate-key"))
	assert.Equal(t, srv.URL, client.BaseURL())
}

func TestMissingSiteID(t *testing.T) {
	srv := fixture_server(t)
	client, _ := fixture_client(srv, "")

	_, err := client.GetRecords(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingSiteID)

	_, err = client.GetRecord(context.Background(), "abc", nil)
	assert.ErrorIs(t, err, ErrMissingSiteID)

	_, err = client.NewRecord(context.Background(), map[string]any{"summary": "x"}, nil)
	assert.ErrorIs(t, err, ErrMissingSiteID)
	assert.ErrorIs(t, err, ErrMissingIdentifier)

	assert.Empty(t, srv.Requests())
	assert.Empty(t, client.Errors())
}

func TestMissingIdentifiers(t *testing.T) {
	srv := fixture_server(t)
	client, _ := fixture_client(srv, testSite)

	_, err := client.GetUser(context.Background(), 0)
	assert.ErrorIs(t, err, ErrMissingUserID)

	_, err = client.GetUser(context.Background(), -3)
	assert.ErrorIs(t, err, ErrMissingUserID)

	_, err = client.GetRecord(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrMissingRecordID)

	assert.Empty(t, srv.Requests())
}

func TestErrorStatusIsNotServedFromCache(t *testing.T) {
	srv := fixture_server(t)
	client, mem := fixture_client(srv, testSite)

	_, err := client.GetUser(context.Background(), 99)
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
	assert.Equal(t, "user not found", herr.APIError)
	assert.Equal(t, 0, mem.Len())

	last, ok := client.LastError()
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, last.HTTPCode)
	assert.Equal(t, http.MethodGet, last.Method)
	assert.Equal(t, srv.URL+"/users/99", last.URL)

	_, err = client.GetUser(context.Background(), 99)
	require.Error(t, err)
	assert.Equal(t, 2, srv.Hits(http.MethodGet, "/users/99"))
	assert.Len(t, client.Errors(), 2)
}

func TestAPIErrorMessage(t *testing.T) {
	srv := fixture_server(t)
	path := "/sites/" + testSite + "/records"
	srv.Fail(http.MethodPost, path, http.StatusBadRequest, `{"error":"invalid"}`)
	client, _ := fixture_client(srv, testSite)

	_, err := client.NewRecord(context.Background(), map[string]any{"summary": "x"}, nil)
	require.Error(t, err)
	assert.True(t, IsAPIError(err))

	last, ok := client.LastError()
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, last.HTTPCode)
	assert.Equal(t, "invalid", last.APIError)
	assert.Empty(t, last.TransportError)
}

func TestNonStringAPIError(t *testing.T) {
	srv := fixture_server(t)
	srv.Fail(http.MethodGet, "/validate-key", http.StatusForbidden, `{"error":{"code":12}}`)
	client, _ := fixture_client(srv, testSite)

	_, err := client.ValidateKey(context.Background())
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, `{"code":12}`, herr.APIError)
}

func TestErrorWithoutAPIMessage(t *testing.T) {
	srv := fixture_server(t)
	srv.Fail(http.MethodGet, "/validate-key", http.StatusInternalServerError, `oops`)
	client, _ := fixture_client(srv, testSite)

	_, err := client.ValidateKey(context.Background())
	require.Error(t, err)
	assert.False(t, IsAPIError(err))

	last, _ := client.LastError()
	assert.Equal(t, http.StatusInternalServerError, last.HTTPCode)
	assert.Empty(t, last.APIError)
}

func TestFailureDropsStaleCacheEntry(t *testing.T) {
	srv := fixture_server(t)
	client, mem := fixture_client(srv, testSite)

	_, err := client.ValidateKey(context.Background(), WithCaching(true), WithTTL(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, mem.Len())

	// The cached entry is bypassed, then removed by the failing call
	srv.Fail(http.MethodGet, "/validate-key", http.StatusServiceUnavailable, `{"error":"down"}`)
	_, err = client.ValidateKey(context.Background(), WithCaching(false))
	require.Error(t, err)
	assert.Equal(t, 0, mem.Len())

	srv.Recover(http.MethodGet, "/validate-key")
	_, err = client.ValidateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, srv.Hits(http.MethodGet, "/validate-key"))
}

func TestFailedPostDropsListCache(t *testing.T) {
	srv := fixture_server(t)
	path := "/sites/" + testSite + "/records"
	srv.AddRecord(testSite, map[string]any{"summary": "first"})
	client, _ := fixture_client(srv, testSite)

	_, err := client.GetRecords(context.Background(), nil)
	require.NoError(t, err)

	srv.Fail(http.MethodPost, path, http.StatusBadRequest, `{"error":"invalid"}`)
	_, err = client.NewRecord(context.Background(), map[string]any{"summary": "second"}, nil)
	require.Error(t, err)

	_, err = client.GetRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Hits(http.MethodGet, path))
}

func TestNewRecord(t *testing.T) {
	srv := fixture_server(t)
	path := "/sites/" + testSite + "/records"
	client, mem := fixture_client(srv, testSite)

	record := map[string]any{"summary": "Post updated", "object_id": float64(12)}
	data, err := client.NewRecord(context.Background(), record, nil)
	require.NoError(t, err)

	created, ok := data.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, created["id"])
	assert.Equal(t, testSite, created["site_id"])
	assert.Equal(t, "Post updated", created["summary"])

	// The caller's map is left as is
	assert.NotContains(t, record, "site_id")

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, path, reqs[0].Path)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	assert.Equal(t, map[string]any{
		"summary":   "Post updated",
		"object_id": float64(12),
		"site_id":   testSite,
	}, sent)

	// POSTs never touch the cache
	assert.Equal(t, 0, mem.Len())
	_, err = client.NewRecord(context.Background(), record, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Hits(http.MethodPost, path))
}

func TestGetRecordWithFields(t *testing.T) {
	srv := fixture_server(t)
	id := srv.AddRecord(testSite, map[string]any{"summary": "hello", "author": "ada"})
	client, _ := fixture_client(srv, testSite)

	data, err := client.GetRecord(context.Background(), id, []string{"id", " ", "summary"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": id, "summary": "hello"}, data)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "id,summary", reqs[0].Query.Get("fields"))
}

func TestGetRecords(t *testing.T) {
	srv := fixture_server(t)
	srv.AddRecord(testSite, map[string]any{"summary": "a"})
	srv.AddRecord(testSite, map[string]any{"summary": "b"})
	srv.AddRecord("other-site", map[string]any{"summary": "c"})
	client, _ := fixture_client(srv, testSite)

	data, err := client.GetRecords(context.Background(), []string{"summary"})
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"summary": "a"},
		map[string]any{"summary": "b"},
	}, data)
}

func TestCachedResponseMatchesFresh(t *testing.T) {
	srv := fixture_server(t)
	srv.AddUser(1, map[string]any{"name": "ada", "roles": []string{"admin", "editor"}})
	client, _ := fixture_client(srv, testSite)

	fresh, err := client.GetUser(context.Background(), 1)
	require.NoError(t, err)
	cached, err := client.GetUser(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, fresh, cached)
	assert.Equal(t, 1, srv.Hits(http.MethodGet, "/users/1"))
}

func TestNonJSONBody(t *testing.T) {
	srv := fixture_server(t)
	srv.Fail(http.MethodGet, "/validate-key", http.StatusOK, `<html>maintenance</html>`)
	client, _ := fixture_client(srv, testSite)

	data, err := client.ValidateKey(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestNoContent(t *testing.T) {
	srv := fixture_server(t)
	srv.Fail(http.MethodGet, "/validate-key", http.StatusNoContent, "")
	client, _ := fixture_client(srv, testSite)

	data, err := client.ValidateKey(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestInvalidAPIKey(t *testing.T) {
	srv := fixture_server(t)
	client := New(
		credentials.Credentials{APIKey: "wrong"},
		WithBaseURL(srv.URL),
		WithNotifier(notify.Discard),
	)

	_, err := client.ValidateKey(context.Background())
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusUnauthorized, herr.StatusCode)
	assert.Equal(t, "invalid api key", herr.APIError)
}

func TestTransportErrorNotifies(t *testing.T) {
	srv := fakeapi.NewServer(testKey)
	baseURL := srv.URL
	srv.Close()

	ctrl := gomock.NewController(t)
	notifier := mock_notify.NewMockNotifier(ctrl)
	notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, n notify.Notice) {
			assert.Equal(t, notify.LevelError, n.Level)
			assert.Equal(t, "Stream API Error.", n.Title)
			assert.NotEmpty(t, n.Message)
		}).
		Times(1)

	client := New(
		credentials.Credentials{APIKey: testKey},
		WithBaseURL(baseURL),
		WithNotifier(notifier),
		WithTimeout(2*time.Second),
	)

	_, err := client.ValidateKey(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.MethodGet, terr.Method)

	last, ok := client.LastError()
	require.True(t, ok)
	assert.NotEmpty(t, last.TransportError)
	assert.Zero(t, last.HTTPCode)
}

func TestUnsafeURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mock_notify.NewMockNotifier(ctrl)

	for _, base := range []string{"ftp://example.com", "file:///etc", "example.com"} {
		client := New(credentials.Credentials{APIKey: testKey}, WithBaseURL(base), WithNotifier(notifier))
		_, err := client.ValidateKey(context.Background())
		assert.ErrorIs(t, err, ErrUnsafeURL, base)
		assert.Empty(t, client.Errors())
	}
}

func TestCacheFailuresDegradeToNetwork(t *testing.T) {
	srv := fixture_server(t)
	ctrl := gomock.NewController(t)
	backend := mock_cache.NewMockCache(ctrl)
	backend.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("backend down")).Times(2)
	backend.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), ValidateKeyTTL).Return(errors.New("backend down")).Times(2)

	client := New(
		credentials.Credentials{APIKey: testKey},
		WithBaseURL(srv.URL),
		WithCache(httpcache.New(backend, "wp_stream_")),
	)

	for i := 0; i < 2; i++ {
		data, err := client.ValidateKey(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"valid": true}, data)
	}
	assert.Equal(t, 2, srv.Hits(http.MethodGet, "/validate-key"))
}

func TestResponseFilter(t *testing.T) {
	srv := fixture_server(t)
	var seen []string
	client, _ := fixture_client(srv, testSite,
		WithResponseFilter(func(data any, url string, args RequestArgs) any {
			seen = append(seen, args.Method+" "+url)
			assert.Equal(t, testKey, args.Header.Get(APIKeyHeader))
			return map[string]any{"wrapped": data}
		}),
	)

	data, err := client.ValidateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"wrapped": map[string]any{"valid": true}}, data)

	// Filters also run on cached responses
	data, err = client.ValidateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"wrapped": map[string]any{"valid": true}}, data)

	assert.Equal(t, []string{
		"GET " + srv.URL + "/validate-key",
		"GET " + srv.URL + "/validate-key",
	}, seen)
}

func TestExtensions(t *testing.T) {
	srv := fixture_server(t)
	srv.AddUser(3, map[string]any{"name": "ada"})

	redact := ExtensionFunc(func(h *Hooks) {
		h.AddResponseFilter(func(data any, url string, args RequestArgs) any {
			if user, ok := data.(map[string]any); ok {
				user["name"] = "redacted"
			}
			return data
		})
	})
	count := 0
	counter := ExtensionFunc(func(h *Hooks) {
		h.AddResponseFilter(func(data any, url string, args RequestArgs) any {
			count++
			return data
		})
	})
	client, _ := fixture_client(srv, testSite, WithExtensions(redact, counter), WithResponseFilter(nil))

	data, err := client.GetUser(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "redacted"}, data)
	assert.Equal(t, 1, count)
}

func TestSiteIDIsEscaped(t *testing.T) {
	srv := fixture_server(t)
	client, _ := fixture_client(srv, "a/b")

	_, err := client.GetRecords(context.Background(), nil)
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/sites/a%2Fb/records", reqs[0].URI)
}

func TestLargeIntegersSurviveDecoding(t *testing.T) {
	srv := fixture_server(t)
	srv.Fail(http.MethodGet, "/validate-key", http.StatusOK, `{"id":9007199254740993}`)
	client, _ := fixture_client(srv, testSite)

	for i := 0; i < 2; i++ {
		data, err := client.ValidateKey(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": json.Number("9007199254740993")}, data)
	}
}

func TestNewRecordKeepsLargeIntegers(t *testing.T) {
	srv := fixture_server(t)
	client, _ := fixture_client(srv, testSite)

	data, err := client.NewRecord(context.Background(), map[string]any{"object_id": json.Number("9007199254740993")}, nil)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), data.(map[string]any)["object_id"])

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, string(reqs[0].Body), `"object_id":9007199254740993`)
}

func TestDecodeJSON(t *testing.T) {
	var v any
	require.NoError(t, DecodeJSON([]byte(" {\"n\": 18446744073709551615} \n"), &v))
	assert.Equal(t, map[string]any{"n": json.Number("18446744073709551615")}, v)

	assert.Error(t, DecodeJSON([]byte(`{"a": 1} {"b": 2}`), &v))
	assert.Error(t, DecodeJSON([]byte(`{"a": 1}x`), &v))
	assert.Error(t, DecodeJSON([]byte(`nope`), &v))
}

func TestEarlierFailureDoesNotEvictLaterResponses(t *testing.T) {
	srv := fixture_server(t)
	srv.AddUser(1, map[string]any{"name": "admin"})
	client, mem := fixture_client(srv, testSite)

	_, err := client.GetUser(context.Background(), 99)
	require.Error(t, err)
	require.Len(t, client.Errors(), 1)

	for i := 0; i < 2; i++ {
		_, err := client.GetUser(context.Background(), 1)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, srv.Hits(http.MethodGet, "/users/1"))
	assert.Equal(t, 1, mem.Len())
	assert.Len(t, client.Errors(), 1)
}

func TestWithTimeoutCopiesHTTPClient(t *testing.T) {
	shared := &http.Client{}
	client := New(credentials.Credentials{},
		WithHTTPClient(shared),
		WithTimeout(3*time.Second),
	)

	assert.Zero(t, shared.Timeout)
	assert.NotSame(t, shared, client.http)
	assert.Equal(t, 3*time.Second, client.http.Timeout)

	// Option order does not matter
	client = New(credentials.Credentials{},
		WithTimeout(3*time.Second),
		WithHTTPClient(shared),
	)
	assert.Zero(t, shared.Timeout)
	assert.Equal(t, 3*time.Second, client.http.Timeout)

	client = New(credentials.Credentials{})
	assert.Equal(t, defaultTimeout, client.http.Timeout)
}
