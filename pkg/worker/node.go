package worker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rolekeeper/pkg/log"
	"github.com/cuemby/rolekeeper/pkg/types"
)

// AllocStatus is the slot lifecycle state of a worker node
type AllocStatus string

const (
	AllocUnassigned AllocStatus = "UNASSIGNED"
	AllocAssigned   AllocStatus = "ASSIGNED"
	AllocLost       AllocStatus = "LOST"
	AllocOfflining  AllocStatus = "OFFLINING"
	AllocReleasing  AllocStatus = "RELEASING"
	AllocReleased   AllocStatus = "RELEASED"
)

// allocRank orders alloc states; a node never moves to a lower rank
var allocRank = map[AllocStatus]int{
	AllocUnassigned: 0,
	AllocAssigned:   1,
	AllocLost:       2,
	AllocOfflining:  2,
	AllocReleasing:  3,
	AllocReleased:   4,
}

// ProcessStep is the cursor of the plan-matching walk of an assigned worker
type ProcessStep string

const (
	StepBegin            ProcessStep = "BEGIN"
	StepUpdateGracefully ProcessStep = "PROCESS_UPDATE_GRACEFULLY"
	StepResourcePlan     ProcessStep = "PROCESS_RESOURCE_PLAN"
	StepLaunchPlan       ProcessStep = "PROCESS_LAUNCH_PLAN"
	StepHealthInfo       ProcessStep = "PROCESS_HEALTH_INFO"
	StepServiceInfo      ProcessStep = "PROCESS_SERVICE_INFO"
)

var stepRank = map[ProcessStep]int{
	StepBegin:            0,
	StepUpdateGracefully: 1,
	StepResourcePlan:     2,
	StepLaunchPlan:       3,
	StepHealthInfo:       4,
	StepServiceInfo:      5,
}

// BadReason explains why a worker is in a bad state
type BadReason string

const (
	BadReasonNone            BadReason = ""
	BadReasonLost            BadReason = "lost"
	BadReasonDead            BadReason = "dead"
	BadReasonReclaim         BadReason = "reclaim"
	BadReasonTagNotMatch     BadReason = "resourceTagNotMatch"
	BadReasonNotMatch        BadReason = "resourceNotMatch"
	BadReasonProcessNotMatch BadReason = "processNotMatch"
	BadReasonNotReady        BadReason = "notReady"
)

const (
	// DefaultNotMatchTimeout applies when a plan leaves NotMatchTimeout at 0
	DefaultNotMatchTimeout = 300 * time.Second

	// DefaultNotReadyTimeout applies when a plan leaves NotReadyTimeout at 0
	DefaultNotReadyTimeout = 600 * time.Second

	// offlineTimeout bounds how long a releasing worker waits to be unpublished
	offlineTimeout = 60 * time.Second

	maxTransitions = 4
)

// Target is a version and its plan
type Target struct {
	Version string
	Plan    *types.ExtVersionedPlan
}

// Node is one physical binding of a replica to a scheduler slot. It only
// mutates its own fields; the executor turns its state into scheduler calls.
type Node struct {
	id        string
	replicaID string
	logger    zerolog.Logger

	allocStatus AllocStatus
	step        ProcessStep

	slotID      types.SlotID
	slot        *types.SlotInfo
	slotMissing bool
	health      types.HealthInfo
	service     types.ServiceInfo

	curVersion string
	next       Target
	final      Target

	releasing   bool
	releasePref types.ReleasePreference
	offline     bool

	resourceMatched bool
	processMatched  bool
	healthMatched   bool
	completed       bool

	notMatchSince  time.Time
	notReadySince  time.Time
	offliningSince time.Time
}

// New creates an unassigned worker node
func New(id, replicaID string, logger zerolog.Logger) *Node {
	return &Node{
		id:          id,
		replicaID:   replicaID,
		logger:      log.WithWorker(logger, id),
		allocStatus: AllocUnassigned,
		step:        StepBegin,
		health:      types.HealthInfo{HealthStatus: types.HealthUnknown, WorkerStatus: types.WorkerUnknown},
		service:     types.ServiceInfo{Status: types.ServiceUnknown},
		releasePref: types.DefaultReleasePreference(),
	}
}

// ID returns the worker id, "<replica id>-w<n>"
func (w *Node) ID() string { return w.id }

// ReplicaID returns the id of the owning replica
func (w *Node) ReplicaID() string { return w.replicaID }

// AllocStatus returns the slot lifecycle state
func (w *Node) AllocStatus() AllocStatus { return w.allocStatus }

// Step returns where the last plan-matching walk stopped
func (w *Node) Step() ProcessStep { return w.step }

// SlotID returns the assigned slot, empty while unassigned
func (w *Node) SlotID() types.SlotID { return w.slotID }

// Health returns the last health verdict
func (w *Node) Health() types.HealthInfo { return w.health }

// Service returns the last service verdict
func (w *Node) Service() types.ServiceInfo { return w.service }

// CurVersion returns the version the slot was last seen running
func (w *Node) CurVersion() string { return w.curVersion }

// NextVersion returns the version the worker moves to
func (w *Node) NextVersion() string { return w.next.Version }

// FinalVersion returns the version the worker converges to
func (w *Node) FinalVersion() string { return w.final.Version }

// NextPlan returns the plan of NextVersion
func (w *Node) NextPlan() *types.ExtVersionedPlan { return w.next.Plan }

// FinalPlan returns the plan of FinalVersion
func (w *Node) FinalPlan() *types.ExtVersionedPlan { return w.final.Plan }

// IsOffline reports whether the worker should be unpublished
func (w *Node) IsOffline() bool { return w.offline }

// IsReleasing reports whether Release was called
func (w *Node) IsReleasing() bool { return w.releasing }

// ReleasePreference returns the preference the slot is released with
func (w *Node) ReleasePreference() types.ReleasePreference { return w.releasePref }

// Slot returns a copy of the last observed slot, or nil
func (w *Node) Slot() *types.SlotInfo {
	if w.slot == nil {
		return nil
	}
	s := w.slot.Clone()
	return &s
}

// SetPlan sets the version the worker should run next
func (w *Node) SetPlan(version string, plan *types.ExtVersionedPlan) {
	if w.next.Version != version {
		w.logger.Debug().
			Str("from", w.next.Version).
			Str("to", version).
			Msg("Worker target version changed")
		w.notMatchSince = time.Time{}
	}
	w.next = Target{Version: version, Plan: plan}
}

// SetFinalPlan sets the version the worker eventually converges to
func (w *Node) SetFinalPlan(version string, plan *types.ExtVersionedPlan) {
	w.final = Target{Version: version, Plan: plan}
}

// AssignSlot binds an unassigned worker to a slot
func (w *Node) AssignSlot(slot types.SlotInfo) bool {
	if w.allocStatus != AllocUnassigned || w.releasing {
		return false
	}
	s := slot.Clone()
	w.slotID = slot.SlotID
	w.slot = &s
	w.slotMissing = false
	w.setAllocStatus(AllocAssigned)
	return true
}

// UpdateSlot records the latest observation of the worker's slot. A nil
// slot means the slot is gone from the scheduler's inventory.
func (w *Node) UpdateSlot(slot *types.SlotInfo) {
	if w.slotID.IsEmpty() || w.allocStatus == AllocReleased {
		return
	}
	if slot == nil {
		w.slotMissing = true
		return
	}
	s := slot.Clone()
	w.slot = &s
	w.slotMissing = false
}

// UpdateHealth records the health checker's verdict; ok=false resets it to unknown
func (w *Node) UpdateHealth(info types.HealthInfo, ok bool) {
	if !ok {
		info = types.HealthInfo{HealthStatus: types.HealthUnknown, WorkerStatus: types.WorkerUnknown}
	}
	w.health = info
}

// UpdateService records the service switch's verdict; ok=false resets it to unknown
func (w *Node) UpdateService(info types.ServiceInfo, ok bool) {
	if !ok {
		info = types.ServiceInfo{Status: types.ServiceUnknown}
	}
	w.service = info
}

// Release marks the worker for release with the default preference
func (w *Node) Release() {
	w.ReleaseWithPref(types.DefaultReleasePreference())
}

// ReleaseWithPref marks the worker for release. The first preference wins.
func (w *Node) ReleaseWithPref(pref types.ReleasePreference) {
	if w.releasing {
		return
	}
	w.releasing = true
	w.releasePref = pref
	w.logger.Info().
		Str("alloc", string(w.allocStatus)).
		Str("preference", string(pref.Type)).
		Msg("Worker released")
}

// Schedule advances the slot lifecycle and, while assigned, re-walks the
// plan-matching steps against the latest observations
func (w *Node) Schedule(now time.Time) {
	for i := 0; i < maxTransitions; i++ {
		if !w.transition(now) {
			return
		}
	}
}

func (w *Node) transition(now time.Time) bool {
	switch w.allocStatus {
	case AllocUnassigned:
		if w.releasing {
			w.setAllocStatus(AllocReleased)
			return true
		}
	case AllocAssigned:
		if w.slotMissing {
			w.setAllocStatus(AllocLost)
			return true
		}
		if w.releasing {
			w.clearMatch()
			if w.serviceOnline() {
				w.offline = true
				w.offliningSince = now
				w.setAllocStatus(AllocOfflining)
			} else {
				w.setAllocStatus(AllocReleasing)
			}
			return true
		}
		w.setStep(w.walk(now))
	case AllocOfflining:
		if w.slotMissing || !w.serviceOnline() || now.Sub(w.offliningSince) > offlineTimeout {
			w.setAllocStatus(AllocReleasing)
			return true
		}
	case AllocLost:
		if w.releasing {
			w.setAllocStatus(AllocReleasing)
			return true
		}
	case AllocReleasing:
		if w.slotMissing {
			w.setAllocStatus(AllocReleased)
			return true
		}
	}
	return false
}

// walk returns the step the worker is blocked at
func (w *Node) walk(now time.Time) ProcessStep {
	w.clearMatch()
	plan := w.next.Plan
	if plan == nil || w.slot == nil {
		return StepBegin
	}
	launchMatched := w.launchMatched()

	if !launchMatched && plan.Plan.IsUpdatingGracefully() && w.curVersion != "" && w.curVersion != w.next.Version {
		w.offline = true
		if w.serviceOnline() {
			w.markNotMatch(now)
			return StepUpdateGracefully
		}
	} else {
		w.offline = !plan.Plan.IsOnline()
	}

	w.resourceMatched = w.slot.RequirementID == plan.ResourceChecksum
	if !w.resourceMatched {
		w.markNotMatch(now)
		return StepResourcePlan
	}

	if !launchMatched {
		w.markNotMatch(now)
		return StepLaunchPlan
	}
	w.notMatchSince = time.Time{}
	w.processMatched = true
	if w.curVersion != w.next.Version {
		w.logger.Info().
			Str("from", w.curVersion).
			Str("to", w.next.Version).
			Str("slot", w.slotID.String()).
			Msg("Worker reached version")
		w.curVersion = w.next.Version
	}

	if !w.isReady() {
		if w.notReadySince.IsZero() {
			w.notReadySince = now
		}
		return StepHealthInfo
	}
	w.notReadySince = time.Time{}
	w.healthMatched = true

	if !w.serviceMatched(plan) {
		return StepServiceInfo
	}
	w.completed = true
	return StepServiceInfo
}

func (w *Node) clearMatch() {
	w.resourceMatched = false
	w.processMatched = false
	w.healthMatched = false
	w.completed = false
}

func (w *Node) markNotMatch(now time.Time) {
	if w.notMatchSince.IsZero() {
		w.notMatchSince = now
	}
}

// LaunchPlan returns the next launch plan tagged with this worker's id
func (w *Node) LaunchPlan() types.LaunchPlan {
	if w.next.Plan == nil {
		return types.LaunchPlan{}
	}
	return w.next.Plan.Plan.LaunchPlan.WithProcessTag(w.id)
}

// FinalLaunchPlan returns the final launch plan tagged with this worker's id
func (w *Node) FinalLaunchPlan() types.LaunchPlan {
	if w.final.Plan == nil {
		return w.LaunchPlan()
	}
	return w.final.Plan.Plan.LaunchPlan.WithProcessTag(w.id)
}

func (w *Node) launchMatched() bool {
	if w.slot == nil || w.next.Plan == nil {
		return false
	}
	if w.slot.ProcessStatus != types.ProcessRunning {
		return false
	}
	return w.slot.LaunchSignature == w.LaunchPlan().Signature()
}

func (w *Node) isReady() bool {
	return w.health.HealthStatus == types.HealthAlive && w.health.WorkerStatus == types.WorkerReady
}

func (w *Node) serviceOnline() bool {
	return w.service.Status == types.ServiceAvailable || w.service.Status == types.ServicePartAvailable
}

func (w *Node) serviceMatched(plan *types.ExtVersionedPlan) bool {
	if !plan.ServiceRequired {
		return true
	}
	if w.offline {
		return !w.serviceOnline()
	}
	return w.service.Status == types.ServiceAvailable
}

// ReadyToLaunch reports whether the executor may push the next launch plan.
// The slot must carry the next plan's resources first.
func (w *Node) ReadyToLaunch() bool {
	if w.allocStatus != AllocAssigned || w.releasing || w.slot == nil || w.next.Plan == nil {
		return false
	}
	if !w.resourceMatched || stepRank[w.step] < stepRank[StepLaunchPlan] {
		return false
	}
	return w.slot.ResourceTag == w.next.Plan.ResourceTag
}

// IsBroken reports whether the slot is permanently failed
func (w *Node) IsBroken() bool {
	switch w.allocStatus {
	case AllocLost:
		return true
	case AllocAssigned:
	default:
		return false
	}
	if w.health.HealthStatus == types.HealthDead {
		return true
	}
	if w.slot == nil {
		return false
	}
	if w.slot.Reclaiming {
		return true
	}
	switch w.slot.Status() {
	case types.SlotDead, types.SlotPackageFailed, types.SlotProcFailed:
		return true
	}
	return false
}

// BadReason returns why the worker is in a bad state, or BadReasonNone
func (w *Node) BadReason(now time.Time) BadReason {
	if w.releasing {
		return BadReasonNone
	}
	switch w.allocStatus {
	case AllocLost:
		return BadReasonLost
	case AllocAssigned:
	default:
		return BadReasonNone
	}
	if w.IsBroken() {
		if w.slot != nil && w.slot.Reclaiming {
			return BadReasonReclaim
		}
		return BadReasonDead
	}
	plan := w.next.Plan
	if plan == nil {
		return BadReasonNone
	}
	if w.slot != nil && w.slot.ResourceTag != "" && w.slot.ResourceTag != plan.ResourceTag {
		return BadReasonTagNotMatch
	}
	if expired(now, w.notMatchSince, plan.Plan.NotMatchTimeout, DefaultNotMatchTimeout) {
		if !w.resourceMatched {
			return BadReasonNotMatch
		}
		return BadReasonProcessNotMatch
	}
	if expired(now, w.notReadySince, plan.Plan.NotReadyTimeout, DefaultNotReadyTimeout) {
		return BadReasonNotReady
	}
	return BadReasonNone
}

// InBadState reports whether the worker should be replaced
func (w *Node) InBadState(now time.Time) bool {
	return w.BadReason(now) != BadReasonNone
}

func expired(now, since time.Time, seconds int64, def time.Duration) bool {
	if since.IsZero() || seconds < 0 {
		return false
	}
	timeout := def
	if seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	return now.Sub(since) > timeout
}

// IsCompleted reports whether the next plan is fully matched, healthy and published
func (w *Node) IsCompleted() bool {
	return w.allocStatus == AllocAssigned && !w.releasing && w.completed &&
		w.curVersion == w.next.Version && !w.IsBroken()
}

// TargetHasReached reports whether the slot runs the next plan
func (w *Node) TargetHasReached() bool {
	return w.allocStatus == AllocAssigned && w.processMatched && w.curVersion == w.next.Version
}

// IsAvailable reports whether the worker currently serves traffic
func (w *Node) IsAvailable() bool {
	if w.allocStatus != AllocAssigned || w.releasing || w.offline || !w.isReady() || w.IsBroken() {
		return false
	}
	if w.slot == nil || w.slot.ProcessStatus != types.ProcessRunning {
		return false
	}
	if w.next.Plan != nil && w.next.Plan.ServiceRequired {
		return w.service.Status == types.ServiceAvailable
	}
	return true
}

// IsUnAssignedSlot reports whether the worker still waits for a slot
func (w *Node) IsUnAssignedSlot() bool {
	return w.allocStatus == AllocUnassigned
}

// IsNeedSlot reports whether the worker holds or wants a slot that is not being released
func (w *Node) IsNeedSlot() bool {
	switch w.allocStatus {
	case AllocUnassigned:
		return !w.releasing
	case AllocAssigned, AllocOfflining:
		return true
	}
	return false
}

// IsSlotReleased reports whether the worker reached RELEASED
func (w *Node) IsSlotReleased() bool {
	return w.allocStatus == AllocReleased
}

// ReleasingSlot returns the slot to hand back to the scheduler, if any
func (w *Node) ReleasingSlot() (types.SlotID, types.ReleasePreference, bool) {
	if w.allocStatus != AllocReleasing || w.slotMissing || w.slotID.IsEmpty() {
		return types.SlotID{}, types.ReleasePreference{}, false
	}
	return w.slotID, w.releasePref, true
}

// ResourceTag returns the tag of the assigned slot, or the target tag
func (w *Node) ResourceTag() string {
	if w.slot != nil && w.slot.ResourceTag != "" {
		return w.slot.ResourceTag
	}
	if w.next.Plan != nil {
		return w.next.Plan.ResourceTag
	}
	return ""
}

// SlotStatus returns the folded status of the last observed slot
func (w *Node) SlotStatus() types.SlotStatus {
	if w.slot == nil {
		return types.SlotUnknown
	}
	return w.slot.Status()
}

// IsReclaiming reports whether the scheduler is taking the slot back
func (w *Node) IsReclaiming() bool {
	return w.slot != nil && w.slot.Reclaiming
}

// SlotPreference returns the scheduler-side preference of the slot
func (w *Node) SlotPreference() types.SlotPreference {
	if w.slot == nil || w.slot.Preference == "" {
		return types.PreferenceNormal
	}
	return w.slot.Preference
}

// View returns the read-only view handed to health checkers and service switches
func (w *Node) View() types.WorkerSnapshot {
	online := true
	if w.next.Plan != nil {
		online = w.next.Plan.Plan.IsOnline()
	}
	return types.WorkerSnapshot{
		NodeID:         w.id,
		ReplicaID:      w.replicaID,
		Version:        w.curVersion,
		SlotID:         w.slotID,
		Slot:           w.Slot(),
		Assigned:       w.allocStatus == AllocAssigned || w.allocStatus == AllocOfflining,
		Releasing:      w.releasing,
		Offline:        w.offline,
		Online:         online,
		ProcessRunning: w.slot != nil && w.slot.ProcessStatus == types.ProcessRunning,
		Ready:          w.isReady(),
	}
}

func (w *Node) setAllocStatus(to AllocStatus) {
	from := w.allocStatus
	if from == to {
		return
	}
	if allocRank[to] < allocRank[from] {
		w.logger.Error().
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Refusing alloc status regression")
		return
	}
	w.allocStatus = to
	if to != AllocAssigned {
		w.step = StepBegin
	}
	w.logger.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("slot", w.slotID.String()).
		Msg("Worker alloc status changed")
}

func (w *Node) setStep(step ProcessStep) {
	if w.step == step {
		return
	}
	w.logger.Debug().
		Str("from", string(w.step)).
		Str("to", string(step)).
		Msg("Worker step changed")
	w.step = step
}
