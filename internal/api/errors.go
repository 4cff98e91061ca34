package api

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrMissingIdentifier is returned, without any request being made, when an
// operation lacks a required identifier.
var ErrMissingIdentifier = errors.New("missing required identifier")

var (
	ErrMissingUserID   = fmt.Errorf("%w: user id", ErrMissingIdentifier)
	ErrMissingRecordID = fmt.Errorf("%w: record id", ErrMissingIdentifier)
	ErrMissingSiteID   = fmt.Errorf("%w: site id", ErrMissingIdentifier)
)

// ErrUnsafeURL is returned when a request URL is not plain http(s)
var ErrUnsafeURL = errors.New("unsafe request url")

// TransportError means no response was received
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream api: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError means the API answered with a non-success status.
// APIError holds the body's "error" field when there was one.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	APIError   string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("stream api: %s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.APIError != "" {
		msg += ": " + e.APIError
	}
	return msg
}

// IsAPIError reports whether err carries an application-level error message
func IsAPIError(err error) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.APIError != ""
}

// ErrorDetail describes one failed call
type ErrorDetail struct {
	Method         string    `json:"method" yaml:"method"`
	URL            string    `json:"url" yaml:"url"`
	HTTPCode       int       `json:"http_code,omitempty" yaml:"http_code,omitempty"`
	APIError       string    `json:"api_error,omitempty" yaml:"api_error,omitempty"`
	TransportError string    `json:"remote_request_error,omitempty" yaml:"remote_request_error,omitempty"`
	Time           time.Time `json:"time" yaml:"time"`
}

// ErrorLog accumulates failures. It is never reset.
type ErrorLog struct {
	mu      sync.Mutex
	entries []ErrorDetail
}

func (l *ErrorLog) add(d ErrorDetail) {
	if d.Time.IsZero() {
		d.Time = time.Now()
	}
	l.mu.Lock()
	l.entries = append(l.entries, d)
	l.mu.Unlock()
}

// Errors returns a copy of the log
func (l *ErrorLog) Errors() []ErrorDetail {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ErrorDetail(nil), l.entries...)
}

func (l *ErrorLog) Last() (ErrorDetail, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ErrorDetail{}, false
	}
	return l.entries[len(l.entries)-1], true
}
