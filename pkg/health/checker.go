package health

import (
	"sync"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// Checker judges the health of the workers of one role
type Checker interface {
	// HealthInfos returns the latest verdict per worker node id
	HealthInfos() map[string]types.HealthInfo

	// IsWorking reports whether the verdicts can be trusted
	IsWorking() bool

	// Update replaces the set of workers to judge
	Update(workers []types.WorkerSnapshot)
}

// Manager hands out one checker per role
type Manager interface {
	GetHealthChecker(id string, cfg types.HealthCheckerConfig) Checker
	ReleaseHealthChecker(id string)
}

// MemoryChecker derives health from the slot status of each worker
type MemoryChecker struct {
	mu        sync.RWMutex
	infos     map[string]types.HealthInfo
	overrides map[string]types.HealthInfo
	working   bool
}

// NewMemoryChecker creates a working checker
func NewMemoryChecker() *MemoryChecker {
	return &MemoryChecker{
		infos:     make(map[string]types.HealthInfo),
		overrides: make(map[string]types.HealthInfo),
		working:   true,
	}
}

// Update folds the slot status of every assigned worker into a verdict
func (c *MemoryChecker) Update(workers []types.WorkerSnapshot) {
	infos := make(map[string]types.HealthInfo, len(workers))
	for _, w := range workers {
		if !w.Assigned || w.Slot == nil {
			continue
		}
		info := slotHealth(w.Slot)
		info.Version = w.Version
		infos[w.NodeID] = info
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, info := range c.overrides {
		if _, ok := infos[id]; ok {
			info.Version = infos[id].Version
			infos[id] = info
		}
	}
	c.infos = infos
}

func slotHealth(slot *types.SlotInfo) types.HealthInfo {
	switch slot.Status() {
	case types.SlotRunning:
		return types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerReady}
	case types.SlotRestarting:
		return types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerNotReady}
	case types.SlotProcFailed, types.SlotPackageFailed:
		return types.HealthInfo{HealthStatus: types.HealthDead, WorkerStatus: types.WorkerNotReady}
	case types.SlotDead:
		return types.HealthInfo{HealthStatus: types.HealthLost, WorkerStatus: types.WorkerUnknown}
	default:
		return types.HealthInfo{HealthStatus: types.HealthUnknown, WorkerStatus: types.WorkerUnknown}
	}
}

// HealthInfos returns the verdicts, overrides applied
func (c *MemoryChecker) HealthInfos() map[string]types.HealthInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]types.HealthInfo, len(c.infos))
	for id, info := range c.infos {
		out[id] = info
	}
	return out
}

// IsWorking reports false after SetWorking(false)
func (c *MemoryChecker) IsWorking() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.working
}

// SetWorking toggles IsWorking
func (c *MemoryChecker) SetWorking(working bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.working = working
}

// Override pins the verdict of a worker from the next Update on
func (c *MemoryChecker) Override(nodeID string, info types.HealthInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[nodeID] = info
}

// ClearOverride removes a pinned verdict
func (c *MemoryChecker) ClearOverride(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overrides, nodeID)
}

// MemoryManager hands out MemoryCheckers
type MemoryManager struct {
	mu       sync.Mutex
	checkers map[string]*MemoryChecker
}

// NewMemoryManager creates a manager with no checkers
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{checkers: make(map[string]*MemoryChecker)}
}

// GetHealthChecker returns the checker of id, creating it on first use
func (m *MemoryManager) GetHealthChecker(id string, cfg types.HealthCheckerConfig) Checker {
	return m.Checker(id)
}

// Checker returns the concrete checker of id, creating it if needed
func (m *MemoryManager) Checker(id string) *MemoryChecker {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checkers[id]
	if !ok {
		c = NewMemoryChecker()
		m.checkers[id] = c
	}
	return c
}

// ReleaseHealthChecker forgets the checker of id
func (m *MemoryManager) ReleaseHealthChecker(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkers, id)
}
