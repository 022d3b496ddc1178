package role

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cuemby/rolekeeper/pkg/metrics"
	"github.com/cuemby/rolekeeper/pkg/replica"
	"github.com/cuemby/rolekeeper/pkg/types"
)

// SnapshotSchemaVersion is bumped on incompatible snapshot changes
const SnapshotSchemaVersion = 1

// Snapshot is the persisted form of a role
type Snapshot struct {
	SchemaVersion int                                `json:"schemaVersion"`
	GroupID       string                             `json:"groupId"`
	RoleID        string                             `json:"roleId"`
	RoleGUID      string                             `json:"roleGuid"`
	Global        types.GlobalPlan                   `json:"global"`
	Plans         map[string]*types.ExtVersionedPlan `json:"plans"`
	LatestVersion string                             `json:"latestVersion,omitempty"`
	Stopped       bool                               `json:"stopped,omitempty"`
	ReplicaSeq    int                                `json:"replicaSeq"`
	Replicas      []replica.Snapshot                 `json:"replicas"`
}

// Snapshot captures the role for persistence
func (r *Role) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	plans := make(map[string]*types.ExtVersionedPlan, len(r.plans))
	for v, p := range r.plans {
		plans[v] = p.Clone()
	}
	s := &Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		GroupID:       r.groupID,
		RoleID:        r.roleID,
		RoleGUID:      r.guid,
		Global:        r.global.Clone(),
		Plans:         plans,
		LatestVersion: r.latestVersion,
		Stopped:       r.stopped,
		ReplicaSeq:    r.creator.Seq(),
		Replicas:      make([]replica.Snapshot, 0, len(r.nodes)),
	}
	for _, n := range r.nodes {
		s.Replicas = append(s.Replicas, n.Snapshot())
	}
	return s
}

// EncodeSnapshot serializes a snapshot
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot written by EncodeSnapshot
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("unsupported snapshot schema version %d", s.SchemaVersion)
	}
	return &s, nil
}

// Status is the operator report of a role
type Status struct {
	Key           string           `json:"key"`
	RoleGUID      string           `json:"roleGuid"`
	LatestVersion string           `json:"latestVersion,omitempty"`
	Versions      []string         `json:"versions"`
	Count         int32            `json:"count"`
	Stopped       bool             `json:"stopped,omitempty"`
	Completed     bool             `json:"completed"`
	Replicas      []replica.Status `json:"replicas"`
}

// Status reports the role as of now
func (r *Role) Status(now time.Time) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		Key:           r.key,
		RoleGUID:      r.guid,
		LatestVersion: r.latestVersion,
		Versions:      sortedVersions(r.plans),
		Count:         r.global.Count,
		Stopped:       r.stopped,
		Completed:     r.isCompletedLocked(),
		Replicas:      make([]replica.Status, 0, len(r.nodes)),
	}
	for _, n := range r.nodes {
		st.Replicas = append(st.Replicas, n.Status(now))
	}
	return st
}

// Stats summarizes the role for the metrics collector
func (r *Role) Stats() metrics.RoleStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := metrics.RoleStats{
		Name:       r.key,
		Replicas:   len(r.nodes),
		IsComplete: r.isCompletedLocked(),
	}
	for _, n := range r.nodes {
		if n.IsAvailable() {
			s.Available++
		}
		if n.IsCompleted() {
			s.Completed++
		}
		if n.IsReleasing() {
			s.Releasing++
		}
		if n.Backup() != nil {
			s.Recovering++
		}
	}
	return s
}

// Versions returns the versions the role still holds plans for
func (r *Role) Versions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedVersions(r.plans)
}

// LatestVersion returns the version replicas converge to
func (r *Role) LatestVersion() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latestVersion
}

func sortedVersions(plans map[string]*types.ExtVersionedPlan) []string {
	return slices.Sorted(maps.Keys(plans))
}
