package role

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rolekeeper/pkg/events"
	"github.com/cuemby/rolekeeper/pkg/health"
	"github.com/cuemby/rolekeeper/pkg/hippo"
	"github.com/cuemby/rolekeeper/pkg/service"
	"github.com/cuemby/rolekeeper/pkg/types"
)

var now0 = time.Unix(1_700_000_000, 0)

type harness struct {
	sim      *hippo.Simulator
	health   *health.MemoryManager
	services *service.MemoryManager
	events   *events.Recorder
	role     *Role
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sim:      hippo.NewSimulator(hippo.SimulatorConfig{}, zerolog.Nop()),
		health:   health.NewMemoryManager(),
		services: service.NewMemoryManager(),
		events:   &events.Recorder{},
	}
	h.role = New(Config{
		GroupID:  "search",
		RoleID:   "qrs",
		RoleGUID: "guid-qrs",
		Adapter:  h.sim,
		Health:   h.health,
		Services: h.services,
		Events:   h.events,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, h.role.Init(nil))
	return h
}

func rolePlan(count, ratio int32, cmd string) types.RolePlan {
	return types.RolePlan{
		Global: types.GlobalPlan{Count: count, LatestVersionRatio: ratio},
		Versioned: types.VersionedPlan{
			ResourcePlan: types.ResourcePlan{Resources: []types.SlotResource{{Name: "cpu", Amount: 100}}},
			LaunchPlan:   types.LaunchPlan{Processes: []types.ProcessInfo{{Name: "srv", Cmd: cmd}}},
		},
	}
}

func rid(i int) string {
	return fmt.Sprintf("qrs-%08d", i)
}

// cycle runs observation, scheduling and execution once
func (h *harness) cycle(t *testing.T, now time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.role.Update(ctx))
	h.role.Schedule(h.role.DefaultScheduleParams(now))
	require.NoError(t, h.role.Execute(ctx))
}

func (h *harness) converge(t *testing.T, done func() bool) {
	t.Helper()
	for i := 0; i < 10; i++ {
		if done() {
			return
		}
		h.cycle(t, now0)
	}
	require.True(t, done(), "role did not converge")
}

func versions(st Status) map[string][]string {
	out := make(map[string][]string)
	for _, r := range st.Replicas {
		out[r.Version] = append(out[r.Version], r.ID)
	}
	return out
}

func TestScaleUpFromZero(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(4, 100, "/bin/qrs")))

	h.role.Schedule(h.role.DefaultScheduleParams(now0))
	st := h.role.Status(now0)
	require.Len(t, st.Replicas, 4)
	assert.Equal(t, []string{rid(1), rid(2), rid(3), rid(4)}, versions(st)["v1"])
	assert.False(t, h.role.IsCompleted())

	require.NoError(t, h.role.Execute(context.Background()))
	assert.Len(t, h.sim.Slots(), 4)

	h.converge(t, h.role.IsCompleted)
	stats := h.role.Stats()
	assert.Equal(t, "search/qrs", stats.Name)
	assert.Equal(t, 4, stats.Replicas)
	assert.Equal(t, 4, stats.Available)
	assert.True(t, stats.IsComplete)
	assert.Contains(t, h.events.Types(), events.EventRoleCompleted)
	assert.Len(t, h.events.Types(), 1+1+4+1, "created, plan, replicas, completed")
}

func TestScaleUpCappedByMaxCount(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(4, 100, "/bin/qrs")))

	params := h.role.DefaultScheduleParams(now0)
	params.MaxCount = 2
	h.role.Schedule(params)
	assert.Len(t, h.role.Status(now0).Replicas, 2)
}

func TestSteadyStateSendsNothing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(3, 100, "/bin/qrs")))
	h.converge(t, h.role.IsCompleted)

	before := h.sim.Calls()
	for i := 0; i < 3; i++ {
		h.cycle(t, now0)
	}
	assert.Equal(t, before, h.sim.Calls())
	assert.True(t, h.role.IsCompleted())
}

func TestRollingUpgradeByRatio(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(4, 50, "/bin/qrs-1")))
	h.converge(t, h.role.IsCompleted)

	// replica 3 becomes the lowest ranked one
	checker := h.health.Checker("guid-qrs")
	checker.Override(rid(3)+"-w1", types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerNotReady})
	require.NoError(t, h.role.Update(context.Background()))

	require.NoError(t, h.role.SetPlan("v2", rolePlan(4, 50, "/bin/qrs-2")))
	h.role.Schedule(h.role.DefaultScheduleParams(now0))

	got := versions(h.role.Status(now0))
	assert.Equal(t, []string{rid(1), rid(3)}, got["v2"])
	assert.Equal(t, []string{rid(2), rid(4)}, got["v1"])
	assert.Equal(t, []string{"v1", "v2"}, h.role.Versions())
	assert.Equal(t, "v2", h.role.LatestVersion())
	assert.Contains(t, h.events.Types(), events.EventReplicaUpgraded)

	checker.ClearOverride(rid(3) + "-w1")
	h.converge(t, func() bool { return h.role.Stats().Completed == 4 })
	assert.False(t, h.role.IsCompleted(), "old version still running")

	// full rollout drops the old version once nothing refers to it
	require.NoError(t, h.role.SetPlan("v2", rolePlan(4, 100, "/bin/qrs-2")))
	h.role.Schedule(h.role.DefaultScheduleParams(now0))
	h.converge(t, h.role.IsCompleted)
	assert.Equal(t, []string{"v2"}, h.role.Versions())
	assert.Len(t, versions(h.role.Status(now0))["v2"], 4)
}

func TestRolloutWithNewResourcesKeepsOldSlotsUntouched(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(2, 100, "/bin/qrs-1")))
	h.converge(t, h.role.IsCompleted)

	oldTag := h.role.Snapshot().Plans["v1"].ResourceTag
	launched := make(map[types.SlotID]int64)
	for _, slot := range h.sim.Slots() {
		require.Equal(t, oldTag, slot.ResourceTag)
		launched[slot.SlotID] = slot.LaunchSignature
	}
	require.Len(t, launched, 2)

	v2 := rolePlan(2, 100, "/bin/qrs-2")
	v2.Versioned.ResourcePlan.Resources[0].Amount = 200
	require.NoError(t, h.role.SetPlan("v2", v2))
	newTag := h.role.Snapshot().Plans["v2"].ResourceTag
	require.NotEqual(t, oldTag, newTag)

	for i := 0; i < 10 && !h.role.IsCompleted(); i++ {
		h.cycle(t, now0)
		for _, slot := range h.sim.Slots() {
			if slot.ResourceTag != oldTag {
				continue
			}
			assert.Equal(t, launched[slot.SlotID], slot.LaunchSignature,
				"cycle %d: slot %s relaunched before its resources matched", i, slot.SlotID)
		}
	}
	require.True(t, h.role.IsCompleted(), "role did not converge")

	for _, slot := range h.sim.Slots() {
		assert.Equal(t, newTag, slot.ResourceTag)
	}
	assert.Len(t, versions(h.role.Status(now0))["v2"], 2)
	assert.Equal(t, []string{"v2"}, h.role.Versions())
	for id := range launched {
		assert.Contains(t, h.sim.Released(), id)
	}
}

func TestSetPlanValidation(t *testing.T) {
	h := newHarness(t)

	err := h.role.SetPlan("", rolePlan(1, 100, "/bin/qrs"))
	assert.ErrorIs(t, err, types.ErrInvalidPlan)

	err = h.role.SetPlan("v1", rolePlan(-1, 100, "/bin/qrs"))
	assert.ErrorIs(t, err, types.ErrInvalidPlan)

	bad := rolePlan(1, 100, "/bin/qrs")
	bad.Versioned.ResourcePlan.Resources = nil
	assert.ErrorIs(t, h.role.SetPlan("v1", bad), types.ErrMissingResource)

	assert.Empty(t, h.role.Versions())

	uninit := New(Config{RoleID: "x", RoleGUID: "x", Adapter: h.sim, Health: h.health, Services: h.services})
	assert.ErrorIs(t, uninit.SetPlan("v1", rolePlan(1, 100, "/bin/qrs")), ErrNotInitialized)
}

func TestSetPlanKnownVersionMergesBroadcastOnly(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(2, 100, "/bin/qrs")))
	before := h.role.Snapshot().Plans["v1"]

	changed := rolePlan(3, 100, "/bin/other")
	changed.Versioned.UserDefVersion = "build-2"
	require.NoError(t, h.role.SetPlan("v1", changed))

	after := h.role.Snapshot().Plans["v1"]
	assert.Equal(t, before.Plan.LaunchPlan, after.Plan.LaunchPlan)
	assert.Equal(t, before.ResourceTag, after.ResourceTag)
	assert.Equal(t, "build-2", after.Plan.UserDefVersion)
	assert.Equal(t, int32(3), after.AvailableCountBase)
	assert.Equal(t, int32(3), h.role.Snapshot().Global.Count)
}

func TestScheduleStallsWithoutCollaborators(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(2, 100, "/bin/qrs")))

	h.health.Checker("guid-qrs").SetWorking(false)
	h.role.Schedule(h.role.DefaultScheduleParams(now0))
	assert.Empty(t, h.role.Status(now0).Replicas)

	h.health.Checker("guid-qrs").SetWorking(true)
	h.services.Switch("guid-qrs").SetWorking(false)
	h.role.Schedule(h.role.DefaultScheduleParams(now0))
	assert.Empty(t, h.role.Status(now0).Replicas)

	h.services.Switch("guid-qrs").SetWorking(true)
	h.role.Schedule(h.role.DefaultScheduleParams(now0))
	assert.Len(t, h.role.Status(now0).Replicas, 2)
}

func TestAdapterNotWorking(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(1, 100, "/bin/qrs")))
	h.sim.SetWorking(false)

	assert.ErrorIs(t, h.role.Update(context.Background()), hippo.ErrNotWorking)
	assert.ErrorIs(t, h.role.Execute(context.Background()), hippo.ErrNotWorking)
}

func TestServiceConfigsMarkPlansServiceRequired(t *testing.T) {
	h := newHarness(t)
	p := rolePlan(1, 100, "/bin/qrs")
	p.Global.ServiceConfigs = []types.ServiceConfig{{Name: "qrs.search", Type: "memory"}}
	require.NoError(t, h.role.SetPlan("v1", p))

	assert.True(t, h.role.Snapshot().Plans["v1"].ServiceRequired)
	assert.Equal(t, p.Global.ServiceConfigs, h.services.Switch("guid-qrs").Configs())

	h.converge(t, h.role.IsCompleted)
}

func TestStopReleasesEverything(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(3, 100, "/bin/qrs")))
	h.converge(t, h.role.IsCompleted)

	h.role.Stop()
	assert.ErrorIs(t, h.role.SetPlan("v2", rolePlan(3, 100, "/bin/qrs")), ErrStopped)
	assert.False(t, h.role.IsStopped())

	h.converge(t, h.role.IsStopped)
	assert.Empty(t, h.sim.Slots())
	assert.Len(t, h.sim.Released(), 3)

	require.NoError(t, h.role.Close(context.Background()))
	assert.Equal(t, 1, h.sim.Calls().ReleaseTag)
	assert.Contains(t, h.events.Types(), events.EventRoleStopped)
	assert.Contains(t, h.events.Types(), events.EventRoleRemoved)
}

func TestSnapshotRestore(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(2, 100, "/bin/qrs")))
	h.converge(t, h.role.IsCompleted)

	data, err := EncodeSnapshot(h.role.Snapshot())
	require.NoError(t, err)
	snap, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.ReplicaSeq)

	restored := New(Config{
		GroupID:  "search",
		RoleID:   "qrs",
		RoleGUID: "guid-qrs",
		Adapter:  h.sim,
		Health:   health.NewMemoryManager(),
		Services: service.NewMemoryManager(),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, restored.Init(snap))
	assert.Equal(t, "v1", restored.LatestVersion())
	assert.Equal(t, versions(h.role.Status(now0)), versions(restored.Status(now0)))

	h.role = restored
	h.converge(t, restored.IsCompleted)
	assert.Len(t, h.sim.Slots(), 2, "restored role keeps its slots")

	// new replicas continue the recovered sequence
	require.NoError(t, restored.SetPlan("v1", rolePlan(3, 100, "/bin/qrs")))
	restored.Schedule(restored.DefaultScheduleParams(now0))
	assert.Contains(t, versions(restored.Status(now0))["v1"], rid(3))
}

func TestRestoreRejectsBrokenSnapshots(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.role.SetPlan("v1", rolePlan(1, 100, "/bin/qrs")))
	h.role.Schedule(h.role.DefaultScheduleParams(now0))

	fresh := func() *Role {
		return New(Config{RoleID: "qrs", RoleGUID: "guid-qrs", Adapter: h.sim,
			Health: health.NewMemoryManager(), Services: service.NewMemoryManager(), Logger: zerolog.Nop()})
	}

	missing := h.role.Snapshot()
	delete(missing.Plans, "v1")
	assert.Error(t, fresh().Init(missing))

	other := h.role.Snapshot()
	other.RoleGUID = "guid-other"
	assert.Error(t, fresh().Init(other))

	_, err := DecodeSnapshot([]byte(`{"schemaVersion":99}`))
	assert.Error(t, err)
}

func TestDefaultScheduleParams(t *testing.T) {
	p := defaultScheduleParams(types.GlobalPlan{Count: 10, MinHealthCapacity: 75, ExtraRatio: 20}, now0)
	assert.Equal(t, int32(8), p.MinHealthCount)
	assert.Equal(t, int32(12), p.MaxCount)
	assert.Equal(t, now0, p.TimeStamp)

	p = defaultScheduleParams(types.GlobalPlan{Count: 3}, now0)
	assert.Equal(t, int32(0), p.MinHealthCount)
	assert.Equal(t, int32(3), p.MaxCount)
}
