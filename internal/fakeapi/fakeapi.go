// Package fakeapi is an in-memory stand-in for the Stream API. It serves the
// same endpoints, records every request it receives and can be told to fail.
package fakeapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// APIKeyHeader carries the site's master key
const APIKeyHeader = "stream-api-master-key"

// Request is a request as received by the fake
type Request struct {
	Method string
	Path   string
	// URI is the request target as sent, with its original escaping
	URI    string
	Query  url.Values
	Body   []byte
	APIKey string
}

type fault struct {
	status int
	body   string
}

// API implements the Stream API endpoints in memory
type API struct {
	apiKey string
	router chi.Router

	mu       sync.Mutex
	users    map[int64]map[string]any
	records  map[string][]map[string]any
	requests []Request
	faults   map[string]fault
}

// New returns a fake accepting apiKey. An empty apiKey accepts any key.
func New(apiKey string) *API {
	a := &API{
		apiKey:  apiKey,
		users:   make(map[int64]map[string]any),
		records: make(map[string][]map[string]any),
		faults:  make(map[string]fault),
	}

	r := chi.NewRouter()
	r.Use(a.recordRequest)
	r.Use(a.injectFaults)
	r.Use(a.authenticate)

	r.Get("/validate-key", a.validateKey)
	r.Get("/users/{userID}", a.getUser)
	r.Route("/sites/{siteID}/records", func(r chi.Router) {
		r.Get("/", a.listRecords)
		r.Post("/", a.createRecord)
		r.Get("/{recordID}", a.getRecord)
	})

	a.router = r
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// AddUser stores a user served by GET /users/{id}
func (a *API) AddUser(id int64, user map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[id] = user
}

// AddRecord stores a record for siteID and returns its id
func (a *API) AddRecord(siteID string, record map[string]any) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addRecordLocked(siteID, record)
}

func (a *API) addRecordLocked(siteID string, record map[string]any) string {
	stored := make(map[string]any, len(record)+2)
	for k, v := range record {
		stored[k] = v
	}
	id, _ := stored["id"].(string)
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}
	stored["site_id"] = siteID
	a.records[siteID] = append(a.records[siteID], stored)
	return id
}

// Fail makes every method request to path answer with status and body
func (a *API) Fail(method, path string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.faults[method+" "+path] = fault{status: status, body: body}
}

// Recover removes a fault registered with Fail
func (a *API) Recover(method, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.faults, method+" "+path)
}

// Requests returns every request received so far
func (a *API) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Request(nil), a.requests...)
}

// Hits counts the requests received for method and path
func (a *API) Hits(method, path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (a *API) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		a.mu.Lock()
		a.requests = append(a.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			URI:    r.URL.RequestURI(),
			Query:  r.URL.Query(),
			Body:   body,
			APIKey: r.Header.Get(APIKeyHeader),
		})
		a.mu.Unlock()

		logrus.Debugf("fakeapi: %s %s", r.Method, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}

func (a *API) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		f, ok := a.faults[r.Method+" "+r.URL.Path]
		a.mu.Unlock()

		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.body)
	})
}

func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey != "" && r.Header.Get(APIKeyHeader) != a.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) validateKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	a.mu.Lock()
	user, ok := a.users[id]
	a.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) listRecords(w http.ResponseWriter, r *http.Request) {
	fields := requestedFields(r)

	a.mu.Lock()
	records := a.records[chi.URLParam(r, "siteID")]
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, selectFields(rec, fields))
	}
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	recordID := chi.URLParam(r, "recordID")
	fields := requestedFields(r)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.records[siteID] {
		if rec["id"] == recordID {
			writeJSON(w, http.StatusOK, selectFields(rec, fields))
			return
		}
	}
	writeError(w, http.StatusNotFound, "record not found")
}

func (a *API) createRecord(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")

	var record map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil || record == nil {
		writeError(w, http.StatusBadRequest, "invalid record")
		return
	}
	if sid, ok := record["site_id"]; ok && sid != siteID {
		writeError(w, http.StatusBadRequest, "site_id does not match")
		return
	}

	a.mu.Lock()
	id := a.addRecordLocked(siteID, record)
	var created map[string]any
	for _, rec := range a.records[siteID] {
		if rec["id"] == id {
			created = selectFields(rec, requestedFields(r))
		}
	}
	a.mu.Unlock()

	writeJSON(w, http.StatusCreated, created)
}

func requestedFields(r *http.Request) []string {
	raw := r.URL.Query().Get("fields")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func selectFields(rec map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(rec))
	if len(fields) == 0 {
		for k, v := range rec {
			out[k] = v
		}
		return out
	}
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("fakeapi: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server is an API listening on a local httptest server
type Server struct {
	*httptest.Server
	*API
}

// NewServer starts a fake on a random local port. Close it when done.
func NewServer(apiKey string) *Server {
	api := New(apiKey)
	return &Server{
		Server: httptest.NewServer(api),
		API:    api,
	}
}
