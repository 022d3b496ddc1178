package reconciler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/rolekeeper/pkg/metrics"
	"github.com/cuemby/rolekeeper/pkg/role"
	"github.com/cuemby/rolekeeper/pkg/storage"
	"github.com/cuemby/rolekeeper/pkg/types"
)

const (
	DefaultScheduleInterval = time.Second
	DefaultUpdateInterval   = 3 * time.Second
	DefaultCycleTimeout     = 10 * time.Second
	DefaultWorkers          = 8

	// ComponentName is the health component the reconciler reports as
	ComponentName = "reconciler"
)

// Factory builds an uninitialized role
type Factory func(groupID, roleID, roleGUID string) *role.Role

// Config tunes the reconciliation loops
type Config struct {
	ScheduleInterval time.Duration
	UpdateInterval   time.Duration
	CycleTimeout     time.Duration

	// Workers bounds how many roles are driven at once
	Workers int
}

func (c Config) withDefaults() Config {
	if c.ScheduleInterval <= 0 {
		c.ScheduleInterval = DefaultScheduleInterval
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = DefaultCycleTimeout
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	return c
}

// Reconciler drives every role of the process: it runs their cycles on a
// bounded pool, persists their snapshots and removes stopped roles.
type Reconciler struct {
	cfg     Config
	store   storage.Store
	factory Factory
	logger  zerolog.Logger

	mu    sync.RWMutex
	roles map[string]*role.Role

	// cycleMu keeps schedule and update passes from overlapping
	cycleMu sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a reconciler. store may be nil to run without persistence.
func New(cfg Config, store storage.Store, factory Factory, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		cfg:     cfg.withDefaults(),
		store:   store,
		factory: factory,
		logger:  logger.With().Str("component", "reconciler").Logger(),
		roles:   make(map[string]*role.Role),
		stopCh:  make(chan struct{}),
	}
}

// Restore rebuilds the roles persisted in the store
func (r *Reconciler) Restore() error {
	if r.store == nil {
		return nil
	}
	recs, err := r.store.ListRoles()
	if err != nil {
		return fmt.Errorf("failed to list roles: %w", err)
	}
	for _, rec := range recs {
		snap, err := role.DecodeSnapshot(rec.Snapshot)
		if err != nil {
			return fmt.Errorf("role %s: %w", rec.Key, err)
		}
		ro := r.factory(rec.GroupID, rec.RoleID, rec.RoleGUID)
		if err := ro.Init(snap); err != nil {
			return fmt.Errorf("role %s: %w", rec.Key, err)
		}
		r.add(ro)
		r.logger.Info().
			Str("role", rec.Key).
			Int("replicas", len(snap.Replicas)).
			Str("latestVersion", snap.LatestVersion).
			Msg("Role restored")
	}
	return nil
}

// Apply pushes a plan version to a role, creating the role when unknown.
// A new role is only registered once its first plan was accepted.
func (r *Reconciler) Apply(groupID, roleID, roleGUID, version string, plan types.RolePlan) error {
	key := storage.RoleKey(groupID, roleID)
	if ro, ok := r.Get(key); ok {
		if roleGUID != "" && roleGUID != ro.RoleGUID() {
			r.logger.Warn().
				Str("role", key).
				Str("guid", ro.RoleGUID()).
				Str("ignored", roleGUID).
				Msg("Role guid differs from the running role, keeping the running one")
		}
		return ro.SetPlan(version, plan)
	}

	if version == "" {
		return fmt.Errorf("role %s: %w: empty version", key, types.ErrInvalidPlan)
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("role %s: %w", key, err)
	}
	ro := r.factory(groupID, roleID, roleGUID)
	if err := ro.Init(nil); err != nil {
		return fmt.Errorf("role %s: %w", key, err)
	}
	if err := ro.SetPlan(version, plan); err != nil {
		return fmt.Errorf("role %s: %w", key, err)
	}
	r.add(ro)
	return nil
}

func (r *Reconciler) add(ro *role.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[ro.Key()] = ro
	metrics.RolesTotal.Set(float64(len(r.roles)))
}

// Get returns the role of key
func (r *Reconciler) Get(key string) (*role.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ro, ok := r.roles[key]
	return ro, ok
}

// Roles returns the roles sorted by key
func (r *Reconciler) Roles() []*role.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*role.Role, 0, len(r.roles))
	for _, k := range slices.Sorted(maps.Keys(r.roles)) {
		out = append(out, r.roles[k])
	}
	return out
}

// StopRole starts releasing every replica of a role. The role is removed
// once it has none left.
func (r *Reconciler) StopRole(key string) error {
	ro, ok := r.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrRoleNotFound, key)
	}
	ro.Stop()
	return nil
}

// RoleStats implements metrics.StatsSource
func (r *Reconciler) RoleStats() []metrics.RoleStats {
	roles := r.Roles()
	out := make([]metrics.RoleStats, 0, len(roles))
	for _, ro := range roles {
		out = append(out, ro.Stats())
	}
	return out
}

// Start runs the schedule and update loops until Stop
func (r *Reconciler) Start() {
	metrics.UpdateComponent(ComponentName, true, "running")
	r.wg.Add(2)
	go r.loop("schedule", r.cfg.ScheduleInterval, r.ScheduleOnce)
	go r.loop("update", r.cfg.UpdateInterval, r.UpdateOnce)
}

// Stop ends the loops and waits for the running cycle
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	metrics.UpdateComponent(ComponentName, false, "stopped")
}

func (r *Reconciler) loop(phase string, interval time.Duration, cycle func(context.Context) error) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := cycle(context.Background()); err != nil {
				r.logger.Warn().Err(err).Str("phase", phase).Msg("Reconciliation cycle failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// ScheduleOnce runs Schedule and Execute on every role, persists the
// snapshots and removes stopped roles
func (r *Reconciler) ScheduleOnce(ctx context.Context) error {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, "schedule")

	err := r.forEach(ctx, func(ctx context.Context, ro *role.Role) error {
		ro.Schedule(ro.DefaultScheduleParams(time.Now()))
		execErr := ro.Execute(ctx)
		if ro.IsStopped() {
			return r.remove(ctx, ro)
		}
		return errors.Join(execErr, r.persist(ctx, ro))
	})
	metrics.ReconciliationCycles.WithLabelValues("schedule", metrics.Status(err)).Inc()
	return err
}

// UpdateOnce refreshes the observations of every role
func (r *Reconciler) UpdateOnce(ctx context.Context) error {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, "update")

	err := r.forEach(ctx, func(ctx context.Context, ro *role.Role) error {
		return ro.Update(ctx)
	})
	metrics.ReconciliationCycles.WithLabelValues("update", metrics.Status(err)).Inc()
	return err
}

// forEach runs fn on every role with at most Workers at once. A failing
// role never cancels the others.
func (r *Reconciler) forEach(ctx context.Context, fn func(context.Context, *role.Role) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(r.cfg.Workers)
	for _, ro := range r.Roles() {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, r.cfg.CycleTimeout)
			defer cancel()
			if err := fn(cctx, ro); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("role %s: %w", ro.Key(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *Reconciler) persist(ctx context.Context, ro *role.Role) error {
	if r.store == nil {
		return nil
	}
	snap := ro.Snapshot()
	data, err := role.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	rec := &storage.RoleRecord{
		Key:       ro.Key(),
		GroupID:   ro.GroupID(),
		RoleID:    ro.RoleID(),
		RoleGUID:  ro.RoleGUID(),
		Stopped:   snap.Stopped,
		UpdatedAt: time.Now(),
		Snapshot:  data,
	}
	err = retry.Do(
		func() error {
			return r.store.SaveRole(rec)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			r.logger.Warn().Err(err).Str("role", rec.Key).Uint("attempt", attempt).Msg("Snapshot write failed, retrying")
		}),
	)
	metrics.SnapshotWrites.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

func (r *Reconciler) remove(ctx context.Context, ro *role.Role) error {
	var errs []error
	if err := ro.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.store != nil {
		if err := r.store.DeleteRole(ro.Key()); err != nil && !errors.Is(err, storage.ErrRoleNotFound) {
			errs = append(errs, fmt.Errorf("failed to delete role record: %w", err))
		}
	}

	r.mu.Lock()
	delete(r.roles, ro.Key())
	metrics.RolesTotal.Set(float64(len(r.roles)))
	r.mu.Unlock()

	r.logger.Info().Str("role", ro.Key()).Msg("Stopped role removed")
	return errors.Join(errs...)
}
