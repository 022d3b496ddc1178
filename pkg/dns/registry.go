package dns

import (
	"net"
	"slices"
	"strings"
	"sync"
)

// Endpoint is one published worker of a service
type Endpoint struct {
	NodeID string
	IP     net.IP
}

// Registry holds the endpoints published per service name. Names are
// relative to the registry domain, e.g. "qrs.search" is served as
// "qrs.search.<domain>".
type Registry struct {
	mu       sync.RWMutex
	domain   string
	services map[string][]Endpoint
}

// NewRegistry creates an empty registry for domain
func NewRegistry(domain string) *Registry {
	if domain == "" {
		domain = DefaultDomain
	}
	return &Registry{
		domain:   strings.Trim(domain, "."),
		services: make(map[string][]Endpoint),
	}
}

// Domain returns the domain the registry answers for
func (r *Registry) Domain() string {
	return r.domain
}

// Set replaces the endpoints of name. An empty set removes the name.
func (r *Registry) Set(name string, endpoints []Endpoint) {
	name = normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(endpoints) == 0 {
		delete(r.services, name)
		return
	}
	eps := slices.Clone(endpoints)
	slices.SortFunc(eps, func(a, b Endpoint) int { return strings.Compare(a.NodeID, b.NodeID) })
	r.services[name] = eps
}

// Remove drops name from the registry
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, normalize(name))
}

// Lookup returns the endpoints of name sorted by node id
func (r *Registry) Lookup(name string) ([]Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eps, ok := r.services[normalize(name)]
	if !ok {
		return nil, false
	}
	return slices.Clone(eps), true
}

// Names returns the registered names in ascending order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
