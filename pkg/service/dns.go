package service

import (
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/rolekeeper/pkg/dns"
	"github.com/cuemby/rolekeeper/pkg/types"
)

// TypeDNS marks a service config published into the DNS registry. Any
// other type is kept in memory.
const TypeDNS = "dns"

// DNSSwitch publishes workers into a dns.Registry under each configured
// service name. A worker counts as published in a DNS service only when its
// slave host is an IP address.
type DNSSwitch struct {
	*MemorySwitch
	roleGUID string
	registry *dns.Registry
	logger   zerolog.Logger

	pubMu sync.Mutex
	names map[string]bool
}

// NewDNSSwitch creates a switch publishing into registry
func NewDNSSwitch(roleGUID string, registry *dns.Registry, logger zerolog.Logger) *DNSSwitch {
	return &DNSSwitch{
		MemorySwitch: NewMemorySwitch(),
		roleGUID:     roleGUID,
		registry:     registry,
		logger:       logger.With().Str("component", "service").Str("role_guid", roleGUID).Logger(),
		names:        make(map[string]bool),
	}
}

// Update registers publishable workers under every dns service; other service
// types are only accounted for
func (s *DNSSwitch) Update(workers []types.WorkerSnapshot) {
	cfgs := s.Configs()
	published := make([]int, len(workers))

	s.pubMu.Lock()
	current := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Type != TypeDNS {
			for i, w := range workers {
				if w.Publishable() {
					published[i]++
				}
			}
			continue
		}
		var endpoints []dns.Endpoint
		for i, w := range workers {
			if !w.Publishable() {
				continue
			}
			ip := net.ParseIP(w.SlotID.Host())
			if ip == nil {
				s.logger.Warn().Str("worker", w.NodeID).Str("slave", w.SlotID.SlaveAddress).
					Msg("Slave host is not an IP, worker not published")
				continue
			}
			endpoints = append(endpoints, dns.Endpoint{NodeID: w.NodeID, IP: ip})
			published[i]++
		}
		s.registry.Set(cfg.Name, endpoints)
		current[cfg.Name] = true
	}
	for name := range s.names {
		if !current[name] {
			s.registry.Remove(name)
			s.logger.Info().Str("service", name).Msg("Service unpublished")
		}
	}
	s.names = current
	s.pubMu.Unlock()

	s.mu.Lock()
	s.infos = fold(workers, published, len(cfgs))
	s.mu.Unlock()
}

// Close removes every name the switch published
func (s *DNSSwitch) Close() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	for name := range s.names {
		s.registry.Remove(name)
	}
	s.names = make(map[string]bool)
}

// DNSManager hands out DNSSwitches sharing one registry
type DNSManager struct {
	mu       sync.Mutex
	registry *dns.Registry
	logger   zerolog.Logger
	switches map[string]*DNSSwitch
}

// NewDNSManager creates a manager publishing into registry
func NewDNSManager(registry *dns.Registry, logger zerolog.Logger) *DNSManager {
	return &DNSManager{
		registry: registry,
		logger:   logger,
		switches: make(map[string]*DNSSwitch),
	}
}

// GetServiceSwitch returns the switch of roleGUID, creating it on first use
func (m *DNSManager) GetServiceSwitch(roleGUID string) Switch {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.switches[roleGUID]
	if !ok {
		s = NewDNSSwitch(roleGUID, m.registry, m.logger)
		m.switches[roleGUID] = s
	}
	return s
}

// ReleaseServiceSwitch withdraws every record of roleGUID and forgets its switch
func (m *DNSManager) ReleaseServiceSwitch(roleGUID string) {
	m.mu.Lock()
	s, ok := m.switches[roleGUID]
	delete(m.switches, roleGUID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}
