package worker

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// Snapshot is the persisted form of a worker node. Times are unix
// milliseconds, zero when unset.
type Snapshot struct {
	ID             string                  `json:"id"`
	ReplicaID      string                  `json:"replicaId"`
	AllocStatus    AllocStatus             `json:"allocStatus"`
	Step           ProcessStep             `json:"step"`
	SlotID         types.SlotID            `json:"slotId"`
	Slot           *types.SlotInfo         `json:"slot,omitempty"`
	CurVersion     string                  `json:"curVersion,omitempty"`
	NextVersion    string                  `json:"nextVersion,omitempty"`
	FinalVersion   string                  `json:"finalVersion,omitempty"`
	Releasing      bool                    `json:"releasing,omitempty"`
	ReleasePref    types.ReleasePreference `json:"releasePreference"`
	Offline        bool                    `json:"offline,omitempty"`
	NotMatchSince  int64                   `json:"notMatchSince,omitempty"`
	NotReadySince  int64                   `json:"notReadySince,omitempty"`
	OffliningSince int64                   `json:"offliningSince,omitempty"`
}

// Snapshot captures the worker for persistence
func (w *Node) Snapshot() Snapshot {
	return Snapshot{
		ID:             w.id,
		ReplicaID:      w.replicaID,
		AllocStatus:    w.allocStatus,
		Step:           w.step,
		SlotID:         w.slotID,
		Slot:           w.Slot(),
		CurVersion:     w.curVersion,
		NextVersion:    w.next.Version,
		FinalVersion:   w.final.Version,
		Releasing:      w.releasing,
		ReleasePref:    w.releasePref,
		Offline:        w.offline,
		NotMatchSince:  toMillis(w.notMatchSince),
		NotReadySince:  toMillis(w.notReadySince),
		OffliningSince: toMillis(w.offliningSince),
	}
}

// Recover rebuilds a worker from its snapshot. Every version the worker
// refers to must be present in plans.
func Recover(s Snapshot, plans map[string]*types.ExtVersionedPlan, logger zerolog.Logger) (*Node, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("worker snapshot without id")
	}
	if _, ok := allocRank[s.AllocStatus]; !ok {
		return nil, fmt.Errorf("worker %s: unknown alloc status %q", s.ID, s.AllocStatus)
	}

	w := New(s.ID, s.ReplicaID, logger)
	w.allocStatus = s.AllocStatus
	if _, ok := stepRank[s.Step]; ok {
		w.step = s.Step
	}
	w.slotID = s.SlotID
	if s.Slot != nil {
		slot := s.Slot.Clone()
		w.slot = &slot
	}
	w.curVersion = s.CurVersion
	w.releasing = s.Releasing
	if s.ReleasePref.Type != "" {
		w.releasePref = s.ReleasePref
	}
	w.offline = s.Offline
	w.notMatchSince = fromMillis(s.NotMatchSince)
	w.notReadySince = fromMillis(s.NotReadySince)
	w.offliningSince = fromMillis(s.OffliningSince)

	if s.NextVersion != "" {
		plan, ok := plans[s.NextVersion]
		if !ok {
			return nil, fmt.Errorf("worker %s: next version %s not found", s.ID, s.NextVersion)
		}
		w.next = Target{Version: s.NextVersion, Plan: plan}
	}
	if s.FinalVersion != "" {
		plan, ok := plans[s.FinalVersion]
		if !ok {
			return nil, fmt.Errorf("worker %s: final version %s not found", s.ID, s.FinalVersion)
		}
		w.final = Target{Version: s.FinalVersion, Plan: plan}
	}
	return w, nil
}

// Status is the report of one worker for operators
type Status struct {
	ID           string              `json:"id"`
	AllocStatus  AllocStatus         `json:"allocStatus"`
	Step         ProcessStep         `json:"step"`
	Slot         string              `json:"slot,omitempty"`
	SlotStatus   types.SlotStatus    `json:"slotStatus"`
	CurVersion   string              `json:"curVersion,omitempty"`
	NextVersion  string              `json:"nextVersion,omitempty"`
	HealthStatus types.HealthStatus  `json:"healthStatus"`
	WorkerStatus types.WorkerStatus  `json:"workerStatus"`
	Service      types.ServiceStatus `json:"serviceStatus"`
	BadReason    BadReason           `json:"badReason,omitempty"`
	Releasing    bool                `json:"releasing,omitempty"`
	Completed    bool                `json:"completed"`
}

// Status reports the worker as of now
func (w *Node) Status(now time.Time) Status {
	st := Status{
		ID:           w.id,
		AllocStatus:  w.allocStatus,
		Step:         w.step,
		SlotStatus:   w.SlotStatus(),
		CurVersion:   w.curVersion,
		NextVersion:  w.next.Version,
		HealthStatus: w.health.HealthStatus,
		WorkerStatus: w.health.WorkerStatus,
		Service:      w.service.Status,
		BadReason:    w.BadReason(now),
		Releasing:    w.releasing,
		Completed:    w.IsCompleted(),
	}
	if !w.slotID.IsEmpty() {
		st.Slot = w.slotID.String()
	}
	return st
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
