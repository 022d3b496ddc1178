package replica

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rolekeeper/pkg/log"
	"github.com/cuemby/rolekeeper/pkg/quota"
	"github.com/cuemby/rolekeeper/pkg/types"
	"github.com/cuemby/rolekeeper/pkg/worker"
)

// EventType names a recovery decision taken by a replica
type EventType string

const (
	EventRecoverStarted EventType = "recover.started"
	EventRecoverDenied  EventType = "recover.denied"
	EventBackupPromoted EventType = "recover.promoted"
	EventBackupReleased EventType = "recover.abandoned"
)

// Event reports a recovery decision
type Event struct {
	Type      EventType
	ReplicaID string
	WorkerID  string
	Reason    string
}

// RecoverPolicy carries the role-wide inputs of recovery decisions
type RecoverPolicy struct {
	Quota         *quota.BrokenRecoverQuota
	SmoothRecover bool

	// Notify is called for each recovery decision, may be nil
	Notify func(Event)
}

func (p RecoverPolicy) notify(e Event) {
	if p.Notify != nil {
		p.Notify(e)
	}
}

// Node is one logical replica. It always owns a current worker and, while
// recovering, a backup worker that replaces the current one once ready.
type Node struct {
	id     string
	logger zerolog.Logger

	current *worker.Node
	backup  *worker.Node

	version      string
	plan         *types.ExtVersionedPlan
	finalVersion string
	finalPlan    *types.ExtVersionedPlan

	releasing bool
	workerSeq int
}

func newNode(id string, logger zerolog.Logger) *Node {
	n := &Node{
		id:     id,
		logger: log.WithReplica(logger, id),
	}
	n.current = n.newWorker()
	return n
}

func (n *Node) newWorker() *worker.Node {
	n.workerSeq++
	return worker.New(fmt.Sprintf("%s-w%d", n.id, n.workerSeq), n.id, n.logger)
}

// ID returns the replica id
func (n *Node) ID() string { return n.id }

// Version returns the target version
func (n *Node) Version() string { return n.version }

// Plan returns the plan of the target version
func (n *Node) Plan() *types.ExtVersionedPlan { return n.plan }

// FinalVersion returns the version the replica converges to
func (n *Node) FinalVersion() string { return n.finalVersion }

// Current returns the serving worker
func (n *Node) Current() *worker.Node { return n.current }

// Backup returns the recovering worker, or nil
func (n *Node) Backup() *worker.Node { return n.backup }

// IsReleasing reports whether the replica is being released
func (n *Node) IsReleasing() bool { return n.releasing }

// Workers returns the current worker followed by the backup, if any
func (n *Node) Workers() []*worker.Node {
	if n.backup == nil {
		return []*worker.Node{n.mustCurrent()}
	}
	return []*worker.Node{n.mustCurrent(), n.backup}
}

func (n *Node) mustCurrent() *worker.Node {
	if n.current == nil {
		panic(fmt.Sprintf("replica %s has no current worker", n.id))
	}
	return n.current
}

// SetPlan sets the target version of the replica and its workers
func (n *Node) SetPlan(version string, plan *types.ExtVersionedPlan) {
	if n.version != version && n.version != "" {
		n.logger.Info().
			Str("from", n.version).
			Str("to", version).
			Msg("Replica target version changed")
	}
	n.version = version
	n.plan = plan
	n.mustCurrent().SetPlan(version, plan)
	if n.backup != nil {
		n.backup.SetPlan(version, plan)
	}
}

// SetFinalPlan sets the version the replica eventually converges to
func (n *Node) SetFinalPlan(version string, plan *types.ExtVersionedPlan) {
	n.finalVersion = version
	n.finalPlan = plan
	n.mustCurrent().SetFinalPlan(version, plan)
	if n.backup != nil {
		n.backup.SetFinalPlan(version, plan)
	}
}

// Schedule applies the recovery policy, then drives both workers
func (n *Node) Schedule(now time.Time, policy RecoverPolicy) {
	n.mustCurrent()
	n.adjustInternalNode(now, policy)
	n.current.Schedule(now)
	if n.backup != nil {
		n.backup.Schedule(now)
	}
}

func (n *Node) adjustInternalNode(now time.Time, policy RecoverPolicy) {
	if n.releasing {
		return
	}

	if n.backup == nil {
		reason := n.current.BadReason(now)
		if reason == worker.BadReasonNone && !n.current.IsReleasing() {
			return
		}
		broken := n.current.IsBroken() || n.current.IsReleasing()
		if broken && policy.Quota != nil && !policy.Quota.Require(now) {
			n.logger.Warn().
				Str("worker", n.current.ID()).
				Str("reason", string(reason)).
				Msg("Broken recover quota exhausted, recovery deferred")
			policy.notify(Event{Type: EventRecoverDenied, ReplicaID: n.id, WorkerID: n.current.ID(), Reason: string(reason)})
			return
		}

		n.backup = n.newWorker()
		n.backup.SetPlan(n.version, n.plan)
		n.backup.SetFinalPlan(n.finalVersion, n.finalPlan)
		n.logger.Info().
			Str("worker", n.current.ID()).
			Str("backup", n.backup.ID()).
			Str("reason", string(reason)).
			Bool("broken", broken).
			Msg("Recovering replica with backup worker")
		policy.notify(Event{Type: EventRecoverStarted, ReplicaID: n.id, WorkerID: n.backup.ID(), Reason: string(reason)})

		if !policy.SmoothRecover && !n.current.IsReleasing() {
			n.current.Release()
		}
		return
	}

	if n.backup.IsSlotReleased() {
		n.backup = nil
		return
	}
	if n.backup.IsReleasing() {
		return
	}

	if n.backup.IsCompleted() && n.backup.NextVersion() == n.version {
		old := n.current
		n.current, n.backup = n.backup, old
		old.Release()
		n.logger.Info().
			Str("worker", n.current.ID()).
			Str("released", old.ID()).
			Msg("Backup worker promoted to current")
		policy.notify(Event{Type: EventBackupPromoted, ReplicaID: n.id, WorkerID: n.current.ID()})
		return
	}

	if n.backup.InBadState(now) || n.current.IsCompleted() {
		n.backup.Release()
		n.logger.Info().
			Str("backup", n.backup.ID()).
			Bool("currentCompleted", n.current.IsCompleted()).
			Msg("Backup worker abandoned")
		policy.notify(Event{Type: EventBackupReleased, ReplicaID: n.id, WorkerID: n.backup.ID()})
	}
}

// Release marks the replica and its workers for release
func (n *Node) Release() {
	n.ReleaseWithPref(types.DefaultReleasePreference())
}

// ReleaseWithPref marks the replica and its workers for release
func (n *Node) ReleaseWithPref(pref types.ReleasePreference) {
	if !n.releasing {
		n.logger.Info().Str("version", n.version).Msg("Replica released")
	}
	n.releasing = true
	n.mustCurrent().ReleaseWithPref(pref)
	if n.backup != nil {
		n.backup.ReleaseWithPref(pref)
	}
}

// IsReleased reports whether every owned worker gave its slot back
func (n *Node) IsReleased() bool {
	if !n.releasing || !n.mustCurrent().IsSlotReleased() {
		return false
	}
	return n.backup == nil || n.backup.IsSlotReleased()
}

// IsCompleted reports whether the replica runs its target and is healthy,
// with no recovery in progress
func (n *Node) IsCompleted() bool {
	if n.releasing || n.backup != nil {
		return false
	}
	cur := n.mustCurrent()
	return cur.NextVersion() == n.version && cur.CurVersion() == n.version && cur.IsCompleted()
}

// IsAvailable reports whether the replica serves traffic
func (n *Node) IsAvailable() bool {
	return !n.releasing && n.mustCurrent().IsAvailable()
}

// TargetHasReached reports whether the current worker runs the target version
func (n *Node) TargetHasReached() bool {
	cur := n.mustCurrent()
	return cur.NextVersion() == n.version && cur.TargetHasReached()
}

// IsUnAssigned reports whether the current worker still waits for a slot
func (n *Node) IsUnAssigned() bool {
	return n.mustCurrent().IsUnAssignedSlot()
}
