package dns

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

// recordTTL is short since workers come and go with every rollout
const recordTTL = 10

// Resolver answers A queries from a Registry
type Resolver struct {
	registry *Registry
	logger   zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewResolver creates a resolver over registry
func NewResolver(registry *Registry, logger zerolog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		logger:   logger.With().Str("component", "dns.resolver").Logger(),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// InDomain reports whether queryName belongs to the registry domain
func (r *Resolver) InDomain(queryName string) bool {
	name := normalize(queryName)
	return name == r.registry.Domain() || strings.HasSuffix(name, "."+r.registry.Domain())
}

// Resolve returns A records for a service name or one instance of it.
//
// Supports:
//   - qrs.search.rolekeeper    every published worker, shuffled
//   - qrs.search-2.rolekeeper  the second worker ordered by node id
func (r *Resolver) Resolve(queryName string) ([]dns.RR, error) {
	fqdn := makeFQDN(queryName)
	name := r.stripDomain(normalize(queryName))

	r.logger.Debug().Str("query", name).Msg("Resolving DNS query")

	if eps, ok := r.registry.Lookup(name); ok {
		ips := make([]net.IP, 0, len(eps))
		for _, ep := range eps {
			ips = append(ips, ep.IP)
		}
		r.shuffleIPs(ips)
		records := make([]dns.RR, 0, len(ips))
		for _, ip := range ips {
			records = append(records, aRecord(fqdn, ip))
		}
		return records, nil
	}

	service, n, err := parseInstanceName(name)
	if err != nil {
		return nil, fmt.Errorf("name not registered: %s", name)
	}
	eps, ok := r.registry.Lookup(service)
	if !ok {
		return nil, fmt.Errorf("name not registered: %s", service)
	}
	if n > len(eps) {
		return nil, fmt.Errorf("instance %d not found (service has %d instances)", n, len(eps))
	}
	return []dns.RR{aRecord(fqdn, eps[n-1].IP)}, nil
}

func aRecord(fqdn string, ip net.IP) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{
			Name:   fqdn,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    recordTTL,
		},
		A: ip,
	}
}

// stripDomain removes the registry domain suffix
// qrs.search.rolekeeper -> qrs.search
func (r *Resolver) stripDomain(name string) string {
	return strings.TrimSuffix(name, "."+r.registry.Domain())
}

func makeFQDN(name string) string {
	if !strings.HasSuffix(name, ".") {
		return name + "."
	}
	return name
}

func (r *Resolver) shuffleIPs(ips []net.IP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rnd.Shuffle(len(ips), func(i, j int) {
		ips[i], ips[j] = ips[j], ips[i]
	})
}

// parseInstanceName splits "<service>-<n>" with n >= 1
func parseInstanceName(name string) (string, int, error) {
	i := strings.LastIndex(name, "-")
	if i <= 0 {
		return "", 0, fmt.Errorf("not an instance name: %s", name)
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("not an instance name: %s", name)
	}
	return name[:i], n, nil
}
