package api

import (
	"net/http"
	"sync"
)

// RequestArgs is the request a response filter sees
type RequestArgs struct {
	Method string
	Header http.Header
	Body   []byte
}

// ResponseFilter may replace the decoded response data of a request to url
type ResponseFilter func(data any, url string, args RequestArgs) any

// Extension plugs into a client by registering hooks
type Extension interface {
	Register(h *Hooks)
}

// ExtensionFunc adapts a function to Extension
type ExtensionFunc func(h *Hooks)

func (f ExtensionFunc) Register(h *Hooks) { f(h) }

// Hooks holds the registered extension points of a client
type Hooks struct {
	mu      sync.RWMutex
	filters []ResponseFilter
}

// AddResponseFilter appends f. Filters run in registration order.
func (h *Hooks) AddResponseFilter(f ResponseFilter) {
	if f == nil {
		return
	}
	h.mu.Lock()
	h.filters = append(h.filters, f)
	h.mu.Unlock()
}

func (h *Hooks) filterResponse(data any, url string, args RequestArgs) any {
	h.mu.RLock()
	filters := h.filters
	h.mu.RUnlock()

	for _, f := range filters {
		data = f(data, url, args)
	}
	return data
}
