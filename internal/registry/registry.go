// Package registry implements the exact-match handler table the
// dispatcher consults for every request: a (method, path) pair maps to
// exactly one handler, with no wildcard or parameterized matching.
package registry

import (
	"strings"
	"sync"

	"github.com/minumserver/minum/internal/httprequest"
	"github.com/minumserver/minum/internal/response"
	"github.com/minumserver/minum/internal/startline"
)

// Handler is the contract every registered endpoint implements: take a
// parsed Request, return a Response.
type Handler func(req httprequest.Request) response.Response

// VerbPath is the lookup key: an HTTP method paired with a lowercased
// path. Paths are lowercased at registration and lookup time so that
// "/Foo" and "/foo" resolve to the same entry.
type VerbPath struct {
	Method startline.Method
	Path   string
}

func key(method startline.Method, path string) VerbPath {
	return VerbPath{Method: method, Path: strings.ToLower(path)}
}

// Registry is a concurrency-safe exact-match handler table.
type Registry struct {
	mu       sync.RWMutex
	handlers map[VerbPath]Handler
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[VerbPath]Handler)}
}

// Register binds h to (method, path). A later call for the same
// (method, path) overwrites the earlier binding.
func (r *Registry) Register(method startline.Method, path string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key(method, path)] = h
}

// Lookup returns the handler bound to (method, path), if any.
func (r *Registry) Lookup(method startline.Method, path string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key(method, path)]
	return h, ok
}

// Len reports how many handlers are registered, mainly for tests and
// startup logging.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
