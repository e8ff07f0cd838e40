// Package originmap resolves an inbound request Host header to the origin
// server that owns it. It is grounded on the upstream OriginManager this
// project is distilled from, adapted to the registry's named-resource
// pattern used elsewhere in this codebase.
package originmap

import (
	"fmt"
	"net/url"
	"sync"
)

// Origin describes where requests for a given Host should be forwarded.
type Origin struct {
	// Scheme is "http" or "https".
	Scheme string

	// Authority is the origin's host:port, e.g. "origin.example.com:443".
	Authority string
}

// baseURL returns the scheme://authority prefix this Origin forwards to.
func (o Origin) baseURL() *url.URL {
	return &url.URL{Scheme: o.Scheme, Host: o.Authority}
}

// ResolveURLFor builds the absolute origin URL for objectPath against this
// Origin, without consulting a Map. Used by callers that already resolved
// the Origin for a request and only need to address it per-object.
func (o Origin) ResolveURLFor(objectPath string) (string, error) {
	u := o.baseURL()
	u.Path = objectPath
	return u.String(), nil
}

// Map is a concurrency-safe Host -> Origin registry. It is loaded once at
// startup from configuration and read on every request; writes are rare
// enough that a single RWMutex is sufficient.
type Map struct {
	mu      sync.RWMutex
	origins map[string]Origin
}

// New creates an empty Map.
func New() *Map {
	return &Map{origins: make(map[string]Origin)}
}

// Set registers the origin for host, overwriting any existing entry.
func (m *Map) Set(host string, origin Origin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.origins[host] = origin
}

// Lookup returns the Origin registered for host, or false if none is
// registered. host must not contain a port.
func (m *Map) Lookup(host string) (Origin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	origin, ok := m.origins[host]
	return origin, ok
}

// Count returns the number of registered origins.
func (m *Map) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.origins)
}

// ResolveURL builds the origin URL requests for host/path should be sent
// to. Returns an error if no origin is registered for host.
func (m *Map) ResolveURL(host, pathAndQuery string) (*url.URL, error) {
	origin, ok := m.Lookup(host)
	if !ok {
		return nil, fmt.Errorf("originmap: no origin registered for host %q", host)
	}

	parsed, err := url.Parse(pathAndQuery)
	if err != nil {
		return nil, fmt.Errorf("originmap: invalid path %q: %w", pathAndQuery, err)
	}

	u := origin.baseURL()
	u.Path = parsed.Path
	u.RawQuery = parsed.RawQuery
	return u, nil
}
