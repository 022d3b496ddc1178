package hippo

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// SimulatorConfig sets the synthetic cluster of a Simulator
type SimulatorConfig struct {
	// Slaves are the slave addresses slots are placed on, round robin
	Slaves []string

	// SlotsPerSlave caps the slots of one slave, 0 for no cap
	SlotsPerSlave int
}

// Calls counts the mutating calls a Simulator received
type Calls struct {
	Allocate   int
	Launch     int
	ReleaseTag int
}

type simSlot struct {
	info    types.SlotInfo
	current types.LaunchPlan
	final   types.LaunchPlan
}

// Simulator is an in-memory scheduler. Allocation is synchronous: slots
// exist as soon as AllocateSlots returns, and a launch makes the process
// running at once unless a fault was injected.
type Simulator struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	cfg      SimulatorConfig
	requests map[string]types.ResourceRequest
	slots    map[types.SlotID]*simSlot
	released map[types.SlotID]types.ReleasePreference
	dead     map[string]bool
	seq      map[string]int32
	next     int
	working  bool
	checksum int64
	calls    Calls
}

// NewSimulator creates a simulator over cfg.Slaves. With no slaves a
// single local one is used.
func NewSimulator(cfg SimulatorConfig, logger zerolog.Logger) *Simulator {
	if len(cfg.Slaves) == 0 {
		cfg.Slaves = []string{"127.0.0.1:7000"}
	}
	return &Simulator{
		logger:   logger.With().Str("component", "hippo-sim").Logger(),
		cfg:      cfg,
		requests: make(map[string]types.ResourceRequest),
		slots:    make(map[types.SlotID]*simSlot),
		released: make(map[types.SlotID]types.ReleasePreference),
		dead:     make(map[string]bool),
		seq:      make(map[string]int32),
		working:  true,
		checksum: 1,
	}
}

// AllocateSlots applies releases, then grows each tag to its requested count.
// Tags never shrink here; surplus slots are released by the caller.
func (s *Simulator) AllocateSlots(ctx context.Context, requests map[string]types.ResourceRequest,
	releases map[types.SlotID]types.ReleasePreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.working {
		return ErrNotWorking
	}
	s.calls.Allocate++

	for id, pref := range releases {
		if _, ok := s.slots[id]; !ok {
			continue
		}
		delete(s.slots, id)
		s.released[id] = pref
		s.logger.Debug().Str("slot", id.String()).Str("preference", string(pref.Type)).Msg("Slot released")
	}

	for _, tag := range slices.Sorted(maps.Keys(requests)) {
		req := requests[tag]
		s.requests[tag] = req
		have := int32(0)
		for _, slot := range s.slots {
			if slot.info.ResourceTag != tag {
				continue
			}
			have++
			slot.info.RequirementID = req.RequirementID
			slot.info.Resources = slices.Clone(req.Plan.Resources)
		}
		for ; have < req.Count; have++ {
			addr, ok := s.pickSlave()
			if !ok {
				s.logger.Warn().Str("tag", tag).Int32("missing", req.Count-have).Msg("No slave capacity left")
				break
			}
			s.seq[addr]++
			id := types.SlotID{SlaveAddress: addr, ID: s.seq[addr]}
			role, _, _ := strings.Cut(tag, ".")
			s.slots[id] = &simSlot{info: types.SlotInfo{
				Role:          role,
				ResourceTag:   tag,
				SlotID:        id,
				SlaveStatus:   types.SlaveAlive,
				ProcessStatus: types.ProcessUnknown,
				PackageStatus: types.PackageUnknown,
				DataStatus:    types.DataUnknown,
				Resources:     slices.Clone(req.Plan.Resources),
				RequirementID: req.RequirementID,
				Preference:    types.PreferenceNormal,
			}}
			s.logger.Debug().Str("slot", id.String()).Str("tag", tag).Msg("Slot allocated")
		}
	}
	return nil
}

func (s *Simulator) pickSlave() (string, bool) {
	for range s.cfg.Slaves {
		addr := s.cfg.Slaves[s.next%len(s.cfg.Slaves)]
		s.next++
		if s.dead[addr] {
			continue
		}
		if s.cfg.SlotsPerSlave > 0 && s.slotsOn(addr) >= s.cfg.SlotsPerSlave {
			continue
		}
		return addr, true
	}
	return "", false
}

func (s *Simulator) slotsOn(addr string) int {
	n := 0
	for id := range s.slots {
		if id.SlaveAddress == addr {
			n++
		}
	}
	return n
}

// LaunchSlots records the plans and starts the processes of live slots
func (s *Simulator) LaunchSlots(ctx context.Context, current, final map[types.SlotID]types.LaunchPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.working {
		return ErrNotWorking
	}
	s.calls.Launch++

	for id, plan := range current {
		slot, ok := s.slots[id]
		if !ok {
			continue
		}
		slot.current = plan.Clone()
		if f, ok := final[id]; ok {
			slot.final = f.Clone()
		} else {
			slot.final = plan.Clone()
		}
		if slot.info.SlaveStatus == types.SlaveDead {
			continue
		}
		sig := plan.Signature()
		if slot.info.LaunchSignature == sig && slot.info.ProcessStatus == types.ProcessRunning {
			continue
		}
		slot.info.LaunchSignature = sig
		slot.info.PackageStatus = types.PackageInstalled
		slot.info.DataStatus = types.DataFinished
		slot.info.ProcessStatus = types.ProcessRunning
		s.logger.Debug().Str("slot", id.String()).Int64("signature", sig).Msg("Slot launched")
	}
	return nil
}

// GetSlotsByTags returns copies of the slots of tags
func (s *Simulator) GetSlotsByTags(ctx context.Context, tags []string) (map[types.SlotID]types.SlotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.working {
		return nil, ErrNotWorking
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	out := make(map[types.SlotID]types.SlotInfo)
	for id, slot := range s.slots {
		if want[slot.info.ResourceTag] {
			out[id] = slot.info.Clone()
		}
	}
	return out, nil
}

// GetAllTags returns the tags with a request or a slot, sorted
func (s *Simulator) GetAllTags(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.working {
		return nil, ErrNotWorking
	}
	set := make(map[string]bool, len(s.requests))
	for tag := range s.requests {
		set[tag] = true
	}
	for _, slot := range s.slots {
		set[slot.info.ResourceTag] = true
	}
	return slices.Sorted(maps.Keys(set)), nil
}

// ReleaseTag drops the request of tag and all its slots
func (s *Simulator) ReleaseTag(ctx context.Context, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.working {
		return ErrNotWorking
	}
	s.calls.ReleaseTag++
	delete(s.requests, tag)
	for id, slot := range s.slots {
		if slot.info.ResourceTag == tag {
			delete(s.slots, id)
			s.released[id] = types.DefaultReleasePreference()
		}
	}
	s.logger.Info().Str("tag", tag).Msg("Tag released")
	return nil
}

// IsWorking reports false after SetWorking(false)
func (s *Simulator) IsWorking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working
}

// AppChecksum changes on every Restart
func (s *Simulator) AppChecksum() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checksum
}

// SetWorking toggles the simulated scheduler connection
func (s *Simulator) SetWorking(working bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = working
}

// Restart simulates a scheduler failover: the app checksum changes
func (s *Simulator) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checksum++
}

// KillSlave marks a slave and all its slots dead
func (s *Simulator) KillSlave(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead[addr] = true
	for id, slot := range s.slots {
		if id.SlaveAddress == addr {
			slot.info.SlaveStatus = types.SlaveDead
			slot.info.ProcessStatus = types.ProcessUnknown
		}
	}
	s.logger.Info().Str("slave", addr).Msg("Slave killed")
}

// FailProcess marks the process of a slot failed
func (s *Simulator) FailProcess(id types.SlotID) error {
	return s.mutate(id, func(info *types.SlotInfo) {
		info.ProcessStatus = types.ProcessFailed
	})
}

// Reclaim marks a slot as being taken back by the scheduler
func (s *Simulator) Reclaim(id types.SlotID) error {
	return s.mutate(id, func(info *types.SlotInfo) {
		info.Reclaiming = true
	})
}

// SetPreference sets the scheduler-side preference of a slot
func (s *Simulator) SetPreference(id types.SlotID, pref types.SlotPreference) error {
	return s.mutate(id, func(info *types.SlotInfo) {
		info.Preference = pref
	})
}

// RemoveSlot makes a slot vanish without a release
func (s *Simulator) RemoveSlot(id types.SlotID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, id)
}

func (s *Simulator) mutate(id types.SlotID, fn func(*types.SlotInfo)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return fmt.Errorf("slot %s not found", id)
	}
	fn(&slot.info)
	return nil
}

// Slots returns copies of every slot ordered by id
func (s *Simulator) Slots() []types.SlotInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SlotInfo, 0, len(s.slots))
	for _, slot := range s.slots {
		out = append(out, slot.info.Clone())
	}
	slices.SortFunc(out, func(a, b types.SlotInfo) int { return a.SlotID.Compare(b.SlotID) })
	return out
}

// FinalPlan returns the final launch plan last pushed to a slot
func (s *Simulator) FinalPlan(id types.SlotID) (types.LaunchPlan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return types.LaunchPlan{}, false
	}
	return slot.final.Clone(), true
}

// Released returns the preference each released slot was handed back with
func (s *Simulator) Released() map[types.SlotID]types.ReleasePreference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.released)
}

// Calls returns the mutating call counters
func (s *Simulator) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
