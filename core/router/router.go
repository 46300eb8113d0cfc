// Package router maps reserved request paths to in-process handlers.
package router

import (
	"context"
	"sort"
	"sync"
)

// RouteResult is what a handler answers with. It is rendered as a JSON
// {success, message} body with status Code.
type RouteResult struct {
	Code    int    `json:"-"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handler serves a reserved path from the decoded form or JSON fields
type Handler func(ctx context.Context, post map[string]string) RouteResult

// Router is a static table of exact paths. Registration normally happens
// before the server starts; lookups are safe from any goroutine.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Handler
}

// New creates an empty router
func New() *Router {
	return &Router{routes: make(map[string]Handler, 8)}
}

// Handle registers h for path, replacing any previous handler
func (r *Router) Handle(path string, h Handler) {
	if path == "" || path[0] != '/' {
		panic("router: path must begin with '/'")
	}
	if h == nil {
		panic("router: nil handler")
	}
	r.mu.Lock()
	r.routes[path] = h
	r.mu.Unlock()
}

// Lookup returns the handler registered for path
func (r *Router) Lookup(path string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.routes[path]
	r.mu.RUnlock()
	return h, ok
}

// Reserved reports whether path is served by a handler instead of a file
func (r *Router) Reserved(path string) bool {
	_, ok := r.Lookup(path)
	return ok
}

// Paths returns the registered paths in order
func (r *Router) Paths() []string {
	r.mu.RLock()
	paths := make([]string, 0, len(r.routes))
	for p := range r.routes {
		paths = append(paths, p)
	}
	r.mu.RUnlock()
	sort.Strings(paths)
	return paths
}
