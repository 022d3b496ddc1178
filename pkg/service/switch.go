package service

import (
	"slices"
	"sync"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// Switch publishes the workers of one role into service discovery and
// reports back what is published
type Switch interface {
	// ServiceInfos returns the publication state per worker node id
	ServiceInfos() map[string]types.ServiceInfo

	// UpdateConfigs replaces the services the role publishes into
	UpdateConfigs(cfgs []types.ServiceConfig)

	// IsWorking reports whether the infos can be trusted
	IsWorking() bool

	// Update publishes the publishable workers and unpublishes the rest
	Update(workers []types.WorkerSnapshot)
}

// Manager hands out one switch per role
type Manager interface {
	GetServiceSwitch(roleGUID string) Switch
	ReleaseServiceSwitch(roleGUID string)
}

// MemorySwitch keeps publications in memory only
type MemorySwitch struct {
	mu      sync.RWMutex
	configs []types.ServiceConfig
	infos   map[string]types.ServiceInfo
	working bool
}

// NewMemorySwitch creates a working switch with no services
func NewMemorySwitch() *MemorySwitch {
	return &MemorySwitch{
		infos:   make(map[string]types.ServiceInfo),
		working: true,
	}
}

// UpdateConfigs replaces the services the role publishes to
func (s *MemorySwitch) UpdateConfigs(cfgs []types.ServiceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = slices.Clone(cfgs)
}

// Configs returns the current service configs
func (s *MemorySwitch) Configs() []types.ServiceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.configs)
}

// Update marks publishable workers as published to every configured service
func (s *MemorySwitch) Update(workers []types.WorkerSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	published := make([]int, len(workers))
	for i, w := range workers {
		if w.Publishable() {
			published[i] = len(s.configs)
		}
	}
	s.infos = fold(workers, published, len(s.configs))
}

// fold turns per-worker publication counts into infos. Workers without a
// slot are left out.
func fold(workers []types.WorkerSnapshot, published []int, services int) map[string]types.ServiceInfo {
	infos := make(map[string]types.ServiceInfo, len(workers))
	for i, w := range workers {
		if !w.Assigned {
			continue
		}
		info := types.ServiceInfo{Status: types.ServiceUnavailable, Score: int64(published[i])}
		switch {
		case services == 0 || published[i] == 0:
		case published[i] == services:
			info.Status = types.ServiceAvailable
		default:
			info.Status = types.ServicePartAvailable
		}
		infos[w.NodeID] = info
	}
	return infos
}

// ServiceInfos returns the publication state of every known worker
func (s *MemorySwitch) ServiceInfos() map[string]types.ServiceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.ServiceInfo, len(s.infos))
	for id, info := range s.infos {
		out[id] = info
	}
	return out
}

// IsWorking reports false after SetWorking(false)
func (s *MemorySwitch) IsWorking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.working
}

// SetWorking toggles IsWorking
func (s *MemorySwitch) SetWorking(working bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = working
}

// MemoryManager hands out MemorySwitches
type MemoryManager struct {
	mu       sync.Mutex
	switches map[string]*MemorySwitch
}

// NewMemoryManager creates a manager with no switches
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{switches: make(map[string]*MemorySwitch)}
}

// GetServiceSwitch returns the switch of roleGUID, creating it on first use
func (m *MemoryManager) GetServiceSwitch(roleGUID string) Switch {
	return m.Switch(roleGUID)
}

// Switch returns the concrete switch of roleGUID, creating it if needed
func (m *MemoryManager) Switch(roleGUID string) *MemorySwitch {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.switches[roleGUID]
	if !ok {
		s = NewMemorySwitch()
		m.switches[roleGUID] = s
	}
	return s
}

// ReleaseServiceSwitch forgets the switch of roleGUID
func (m *MemoryManager) ReleaseServiceSwitch(roleGUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.switches, roleGUID)
}
