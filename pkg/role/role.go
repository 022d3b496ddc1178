package role

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rolekeeper/pkg/events"
	"github.com/cuemby/rolekeeper/pkg/executor"
	"github.com/cuemby/rolekeeper/pkg/health"
	"github.com/cuemby/rolekeeper/pkg/hippo"
	"github.com/cuemby/rolekeeper/pkg/metrics"
	"github.com/cuemby/rolekeeper/pkg/quota"
	"github.com/cuemby/rolekeeper/pkg/replica"
	"github.com/cuemby/rolekeeper/pkg/scheduler"
	"github.com/cuemby/rolekeeper/pkg/service"
	"github.com/cuemby/rolekeeper/pkg/types"
	"github.com/cuemby/rolekeeper/pkg/worker"
)

var (
	// ErrStopped is returned by SetPlan once the role was stopped
	ErrStopped = errors.New("role stopped")

	// ErrNotInitialized is returned by operations that need Init first
	ErrNotInitialized = errors.New("role not initialized")
)

// Config wires a role to its collaborators
type Config struct {
	GroupID  string
	RoleID   string
	RoleGUID string

	Adapter  hippo.Adapter
	Health   health.Manager
	Services service.Manager

	// Events receives lifecycle events, may be nil
	Events events.Publisher
	Logger zerolog.Logger
}

// Role drives the replicas of one service toward its plans. All entry
// points are serialized by one mutex.
type Role struct {
	mu sync.Mutex

	groupID string
	roleID  string
	guid    string
	key     string
	logger  zerolog.Logger

	adapter    hippo.Adapter
	healthMgr  health.Manager
	serviceMgr service.Manager
	publisher  events.Publisher
	checker    health.Checker
	sw         service.Switch
	healthCfg  types.HealthCheckerConfig

	global        types.GlobalPlan
	plans         map[string]*types.ExtVersionedPlan
	latestVersion string
	nodes         []*replica.Node

	creator  *replica.Creator
	adjuster *scheduler.Adjuster
	executor *executor.Executor
	quota    *quota.BrokenRecoverQuota

	// inventory is the latest slot observation; mapped is the one the
	// last Schedule assigned slots from, which Execute must judge orphans by
	inventory map[types.SlotID]types.SlotInfo
	mapped    map[types.SlotID]types.SlotInfo

	initialized bool
	stopped     bool
	completed   bool
	lastCycle   time.Time
}

// New creates a role. Init must be called before anything else.
func New(cfg Config) *Role {
	key := cfg.GroupID + "/" + cfg.RoleID
	// callers scope the logger, see log.WithRole
	logger := cfg.Logger
	creator := replica.NewCreator(cfg.RoleID, 0, logger)
	return &Role{
		groupID:    cfg.GroupID,
		roleID:     cfg.RoleID,
		guid:       cfg.RoleGUID,
		key:        key,
		logger:     logger,
		adapter:    cfg.Adapter,
		healthMgr:  cfg.Health,
		serviceMgr: cfg.Services,
		publisher:  cfg.Events,
		plans:      make(map[string]*types.ExtVersionedPlan),
		creator:    creator,
		adjuster:   scheduler.NewAdjuster(creator, logger),
		executor:   executor.New(cfg.Adapter, cfg.RoleGUID, logger),
		quota:      quota.New(types.DefaultBrokenRecoverQuotaConfig()),
		inventory:  make(map[types.SlotID]types.SlotInfo),
		mapped:     make(map[types.SlotID]types.SlotInfo),
	}
}

// Key returns "<group>/<role>"
func (r *Role) Key() string { return r.key }

// GroupID returns the group the role belongs to
func (r *Role) GroupID() string { return r.groupID }

// RoleID returns the role name
func (r *Role) RoleID() string { return r.roleID }

// RoleGUID returns the identity tagging the role's resources
func (r *Role) RoleGUID() string { return r.guid }

// Init wires the collaborators and, when snap is not nil, restores the
// persisted state. Nothing is committed if any replica fails to recover.
func (r *Role) Init(snap *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap != nil {
		if err := r.restore(snap); err != nil {
			return err
		}
	}

	r.healthCfg = r.global.HealthCheckerConfig
	r.checker = r.healthMgr.GetHealthChecker(r.guid, r.healthCfg)
	r.sw = r.serviceMgr.GetServiceSwitch(r.guid)
	r.sw.UpdateConfigs(r.global.ServiceConfigs)
	r.initialized = true

	r.logger.Info().
		Bool("restored", snap != nil).
		Int("replicas", len(r.nodes)).
		Str("latestVersion", r.latestVersion).
		Msg("Role initialized")
	r.publish(events.EventRoleCreated, "role initialized", nil)
	return nil
}

func (r *Role) restore(snap *Snapshot) error {
	if snap.RoleGUID != "" && snap.RoleGUID != r.guid {
		return fmt.Errorf("snapshot of role %s does not match %s", snap.RoleGUID, r.guid)
	}
	plans := make(map[string]*types.ExtVersionedPlan, len(snap.Plans))
	for v, p := range snap.Plans {
		if p == nil {
			return fmt.Errorf("version %s: empty plan", v)
		}
		plan := p.Clone()
		plan.FixChecksum(r.guid)
		plans[v] = plan
	}
	if snap.LatestVersion != "" {
		if _, ok := plans[snap.LatestVersion]; !ok {
			return fmt.Errorf("latest version %s not found in snapshot", snap.LatestVersion)
		}
	}

	nodes := make([]*replica.Node, 0, len(snap.Replicas))
	for _, rs := range snap.Replicas {
		n, err := replica.Recover(rs, plans, r.logger)
		if err != nil {
			return fmt.Errorf("failed to recover replica: %w", err)
		}
		nodes = append(nodes, n)
	}

	r.global = snap.Global.Clone()
	r.plans = plans
	r.latestVersion = snap.LatestVersion
	r.nodes = nodes
	r.stopped = snap.Stopped
	r.creator = replica.NewCreator(r.roleID, snap.ReplicaSeq, r.logger)
	r.adjuster = scheduler.NewAdjuster(r.creator, r.logger)
	r.quota.UpdateConfig(r.global.QuotaConfig())
	r.refreshServiceRequired()
	return nil
}

// SetPlan registers version as the latest target. A known version only
// takes the broadcast fields of plan; its derived metadata never changes.
func (r *Role) SetPlan(version string, plan types.RolePlan) error {
	if version == "" {
		return fmt.Errorf("%w: empty version", types.ErrInvalidPlan)
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return ErrNotInitialized
	}
	if r.stopped {
		return ErrStopped
	}

	ext, known := r.plans[version]
	if known {
		ext.MergeBroadcast(plan.Versioned)
	} else {
		ext = types.NewExtVersionedPlan(r.guid, plan.Versioned)
		r.plans[version] = ext
	}

	r.global = plan.Global.Clone()
	if r.global.Count != 0 {
		ext.AvailableCountBase = r.global.Count
	}
	changed := r.latestVersion != version
	r.latestVersion = version
	r.refreshServiceRequired()
	r.quota.UpdateConfig(r.global.QuotaConfig())

	if r.global.HealthCheckerConfig != r.healthCfg {
		r.healthCfg = r.global.HealthCheckerConfig
		r.checker = r.healthMgr.GetHealthChecker(r.guid, r.healthCfg)
	}
	r.sw.UpdateConfigs(r.global.ServiceConfigs)

	r.logger.Info().
		Str("version", version).
		Bool("new", !known).
		Int32("count", r.global.Count).
		Int32("latestVersionRatio", r.global.LatestVersionRatio).
		Str("resourceTag", ext.ResourceTag).
		Msg("Plan updated")
	if changed || !known {
		r.completed = false
	}
	r.publish(events.EventRolePlanUpdated, "plan updated", map[string]string{
		"version": version,
		"count":   fmt.Sprintf("%d", r.global.Count),
	})
	return nil
}

func (r *Role) refreshServiceRequired() {
	required := len(r.global.ServiceConfigs) > 0
	for _, p := range r.plans {
		p.ServiceRequired = required
	}
}

// DefaultScheduleParams derives the cycle parameters from the global plan
func (r *Role) DefaultScheduleParams(now time.Time) types.ScheduleParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return defaultScheduleParams(r.global, now)
}

func defaultScheduleParams(g types.GlobalPlan, now time.Time) types.ScheduleParams {
	count := max(0, g.Count)
	return types.ScheduleParams{
		MinHealthCount: (count*g.MinHealthCapacity + 99) / 100,
		MaxCount:       max(count, count*(100+g.ExtraRatio)/100),
		TimeStamp:      now,
	}
}

// Schedule runs one reconciliation cycle: map slots, adjust replicas,
// stamp the final plan and drive every replica. It does nothing while
// the health checker or the service switch is not working.
func (r *Role) Schedule(params types.ScheduleParams) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized || r.latestVersion == "" {
		r.logger.Debug().Msg("Role has no plan, schedule skipped")
		return
	}
	if !r.checker.IsWorking() || !r.sw.IsWorking() {
		r.logger.Warn().
			Bool("healthChecker", r.checker.IsWorking()).
			Bool("serviceSwitch", r.sw.IsWorking()).
			Msg("Collaborators not working, schedule skipped")
		return
	}
	now := params.TimeStamp
	if now.IsZero() {
		now = time.Now()
	}
	r.lastCycle = now

	r.assignSlots()
	r.adjustReplicaNodes(params)
	r.setFinalPlan()
	r.scheduleAllReplicaNodes(now)
	r.gcVersions()

	if done := r.isCompletedLocked(); done && !r.completed {
		r.logger.Info().Str("version", r.latestVersion).Int("replicas", len(r.nodes)).Msg("Role completed")
		r.publish(events.EventRoleCompleted, "role reached its target", map[string]string{"version": r.latestVersion})
		r.completed = true
	} else if !done {
		r.completed = false
	}
}

func (r *Role) assignSlots() {
	assigned := executor.MapSlots(r.inventory, r.workers())
	for _, a := range assigned {
		r.logger.Debug().Str("worker", a.WorkerID).Str("slot", a.Slot.String()).Msg("Slot assigned")
	}
	r.mapped = r.inventory
}

func (r *Role) adjustReplicaNodes(params types.ScheduleParams) {
	global := r.global
	if r.stopped {
		global.Count = 0
	}
	res := r.adjuster.Adjust(r.nodes, scheduler.Input{
		Global:        global,
		Plans:         r.plans,
		LatestVersion: r.latestVersion,
		Params:        params,
	})
	r.nodes = res.Nodes

	for _, n := range res.Created {
		metrics.ReplicasCreated.WithLabelValues(r.key).Inc()
		r.publish(events.EventReplicaCreated, "replica created", map[string]string{"replica": n.ID(), "version": n.Version()})
	}
	for _, n := range res.Released {
		metrics.ReplicasReleased.WithLabelValues(r.key).Inc()
		r.publish(events.EventReplicaReleased, "replica released", map[string]string{"replica": n.ID(), "version": n.Version()})
	}
	for _, n := range res.Repinned {
		r.publish(events.EventReplicaUpgraded, "replica repinned", map[string]string{"replica": n.ID(), "version": n.Version()})
	}
}

func (r *Role) setFinalPlan() {
	plan := r.plans[r.latestVersion]
	for _, n := range r.nodes {
		n.SetFinalPlan(r.latestVersion, plan)
	}
}

func (r *Role) scheduleAllReplicaNodes(now time.Time) {
	policy := replica.RecoverPolicy{
		Quota:         r.quota,
		SmoothRecover: r.global.SmoothRecover(),
		Notify:        r.onRecover,
	}
	for _, n := range r.nodes {
		n.Schedule(now, policy)
	}
}

var recoverEvents = map[replica.EventType]events.EventType{
	replica.EventRecoverStarted: events.EventRecoverStarted,
	replica.EventRecoverDenied:  events.EventRecoverDenied,
	replica.EventBackupPromoted: events.EventRecoverPromoted,
	replica.EventBackupReleased: events.EventRecoverAbandoned,
}

func (r *Role) onRecover(e replica.Event) {
	switch e.Type {
	case replica.EventRecoverStarted:
		metrics.BrokenRecover.WithLabelValues(r.key, "admitted").Inc()
	case replica.EventRecoverDenied:
		metrics.BrokenRecover.WithLabelValues(r.key, "denied").Inc()
	}
	meta := map[string]string{"replica": e.ReplicaID, "worker": e.WorkerID}
	if e.Reason != "" {
		meta["reason"] = e.Reason
	}
	r.publish(recoverEvents[e.Type], string(e.Type), meta)
}

// gcVersions drops plans no replica or worker refers to anymore
func (r *Role) gcVersions() {
	used := map[string]bool{r.latestVersion: true}
	for _, n := range r.nodes {
		used[n.Version()] = true
		used[n.FinalVersion()] = true
		for _, w := range n.Workers() {
			used[w.NextVersion()] = true
			used[w.FinalVersion()] = true
		}
	}
	for v := range r.plans {
		if !used[v] {
			delete(r.plans, v)
			r.logger.Info().Str("version", v).Msg("Unused version removed")
		}
	}
}

// Update refreshes slot, health and service observations without touching
// the targets
func (r *Role) Update(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return ErrNotInitialized
	}
	if !r.adapter.IsWorking() {
		return fmt.Errorf("update %s: %w", r.key, hippo.ErrNotWorking)
	}

	workers := r.workers()
	inv, err := r.adapter.GetSlotsByTags(ctx, r.tags(workers))
	if err != nil {
		return fmt.Errorf("update %s: %w", r.key, err)
	}
	r.inventory = inv

	views := make([]types.WorkerSnapshot, 0, len(workers))
	for _, w := range workers {
		if id := w.SlotID(); !id.IsEmpty() {
			if slot, ok := inv[id]; ok {
				w.UpdateSlot(&slot)
			} else {
				w.UpdateSlot(nil)
			}
		}
		views = append(views, w.View())
	}

	r.checker.Update(views)
	healthInfos := r.checker.HealthInfos()
	r.sw.Update(views)
	serviceInfos := r.sw.ServiceInfos()
	for _, w := range workers {
		h, ok := healthInfos[w.ID()]
		w.UpdateHealth(h, ok)
		s, ok := serviceInfos[w.ID()]
		w.UpdateService(s, ok)
	}
	return nil
}

func (r *Role) tags(workers []*worker.Node) []string {
	set := make(map[string]bool)
	for _, p := range r.plans {
		set[p.ResourceTag] = true
	}
	for _, w := range workers {
		if tag := w.ResourceTag(); tag != "" {
			set[tag] = true
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// Execute sends the scheduler calls for the current workers
func (r *Role) Execute(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return ErrNotInitialized
	}
	if !r.adapter.IsWorking() {
		return fmt.Errorf("execute %s: %w", r.key, hippo.ErrNotWorking)
	}
	if err := r.executor.Execute(ctx, r.workers(), r.plans, r.mapped); err != nil {
		return fmt.Errorf("execute %s: %w", r.key, err)
	}
	return nil
}

func (r *Role) workers() []*worker.Node {
	out := make([]*worker.Node, 0, len(r.nodes)+1)
	for _, n := range r.nodes {
		out = append(out, n.Workers()...)
	}
	return out
}

// IsCompleted reports whether the role runs exactly its target: one live
// version, the target count of replicas, all completed at the latest version
func (r *Role) IsCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isCompletedLocked()
}

func (r *Role) isCompletedLocked() bool {
	if !r.initialized || r.latestVersion == "" {
		return false
	}
	if !r.checker.IsWorking() || !r.sw.IsWorking() {
		return false
	}
	count := r.global.Count
	if r.stopped {
		count = 0
	}
	if int32(len(r.nodes)) != count {
		return false
	}
	for _, n := range r.nodes {
		if n.Version() != r.latestVersion || !n.IsCompleted() {
			return false
		}
	}
	return true
}

// Stop sets the target count to zero. The role keeps scheduling until
// IsStopped.
func (r *Role) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	r.completed = false
	r.logger.Info().Int("replicas", len(r.nodes)).Msg("Role stopping")
	r.publish(events.EventRoleStopped, "role stopping", nil)
}

// IsStopped reports whether a stopped role released every replica
func (r *Role) IsStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped && len(r.nodes) == 0
}

// Close hands back the role's tags and collaborators. Call it once the
// role IsStopped.
func (r *Role) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.executor.ReleaseAll(ctx)
	r.healthMgr.ReleaseHealthChecker(r.guid)
	r.serviceMgr.ReleaseServiceSwitch(r.guid)
	r.publish(events.EventRoleRemoved, "role removed", nil)
	if err != nil {
		return fmt.Errorf("close %s: %w", r.key, err)
	}
	return nil
}

func (r *Role) publish(t events.EventType, msg string, meta map[string]string) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(&events.Event{
		Type:     t,
		Role:     r.key,
		Message:  msg,
		Metadata: meta,
	})
}
