package replica

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rolekeeper/pkg/log"
	"github.com/cuemby/rolekeeper/pkg/types"
	"github.com/cuemby/rolekeeper/pkg/worker"
)

// Snapshot is the persisted form of a replica and its workers
type Snapshot struct {
	ID           string           `json:"id"`
	Version      string           `json:"version"`
	FinalVersion string           `json:"finalVersion,omitempty"`
	Releasing    bool             `json:"releasing,omitempty"`
	WorkerSeq    int              `json:"workerSeq"`
	Current      worker.Snapshot  `json:"current"`
	Backup       *worker.Snapshot `json:"backup,omitempty"`
}

// Snapshot captures the replica for persistence
func (n *Node) Snapshot() Snapshot {
	s := Snapshot{
		ID:           n.id,
		Version:      n.version,
		FinalVersion: n.finalVersion,
		Releasing:    n.releasing,
		WorkerSeq:    n.workerSeq,
		Current:      n.mustCurrent().Snapshot(),
	}
	if n.backup != nil {
		b := n.backup.Snapshot()
		s.Backup = &b
	}
	return s
}

// Recover rebuilds a replica from its snapshot
func Recover(s Snapshot, plans map[string]*types.ExtVersionedPlan, logger zerolog.Logger) (*Node, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("replica snapshot without id")
	}
	n := &Node{
		id:           s.ID,
		logger:       log.WithReplica(logger, s.ID),
		version:      s.Version,
		finalVersion: s.FinalVersion,
		releasing:    s.Releasing,
		workerSeq:    s.WorkerSeq,
	}
	if s.Version != "" {
		plan, ok := plans[s.Version]
		if !ok {
			return nil, fmt.Errorf("replica %s: version %s not found", s.ID, s.Version)
		}
		n.plan = plan
	}
	if s.FinalVersion != "" {
		plan, ok := plans[s.FinalVersion]
		if !ok {
			return nil, fmt.Errorf("replica %s: final version %s not found", s.ID, s.FinalVersion)
		}
		n.finalPlan = plan
	}

	cur, err := worker.Recover(s.Current, plans, n.logger)
	if err != nil {
		return nil, fmt.Errorf("replica %s: %w", s.ID, err)
	}
	n.current = cur
	if s.Backup != nil {
		b, err := worker.Recover(*s.Backup, plans, n.logger)
		if err != nil {
			return nil, fmt.Errorf("replica %s backup: %w", s.ID, err)
		}
		n.backup = b
	}
	return n, nil
}

// Status is the report of one replica for operators
type Status struct {
	ID        string         `json:"id"`
	Version   string         `json:"version"`
	Releasing bool           `json:"releasing,omitempty"`
	Available bool           `json:"available"`
	Completed bool           `json:"completed"`
	Current   worker.Status  `json:"current"`
	Backup    *worker.Status `json:"backup,omitempty"`
}

// Status reports the replica as of now
func (n *Node) Status(now time.Time) Status {
	st := Status{
		ID:        n.id,
		Version:   n.version,
		Releasing: n.releasing,
		Available: n.IsAvailable(),
		Completed: n.IsCompleted(),
		Current:   n.mustCurrent().Status(now),
	}
	if n.backup != nil {
		b := n.backup.Status(now)
		st.Backup = &b
	}
	return st
}
