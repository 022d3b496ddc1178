package replica

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rolekeeper/pkg/types"
)

func TestScoreCompare(t *testing.T) {
	base := Score{NotReleasing: true, Available: true, ServiceRank: 3, WorkerRank: 2, HealthRank: 3, SlotRank: 5, NotReclaiming: true, PreferenceRank: 1}

	tests := []struct {
		name  string
		lower func(s *Score)
	}{
		{"releasing", func(s *Score) { s.NotReleasing = false }},
		{"unavailable", func(s *Score) { s.Available = false }},
		{"service", func(s *Score) { s.ServiceRank = 2 }},
		{"service score", func(s *Score) { s.ServiceScore = -1 }},
		{"worker status", func(s *Score) { s.WorkerRank = 1 }},
		{"health", func(s *Score) { s.HealthRank = 0 }},
		{"slot", func(s *Score) { s.SlotRank = 4 }},
		{"reclaiming", func(s *Score) { s.NotReclaiming = false }},
		{"preference", func(s *Score) { s.PreferenceRank = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low := base
			tt.lower(&low)
			assert.Equal(t, -1, low.Compare(base))
			assert.Equal(t, 1, base.Compare(low))
		})
	}
	assert.Zero(t, base.Compare(base))

	// earlier fields dominate later ones
	a := base
	a.Available = false
	b := base
	b.HealthRank = 0
	b.SlotRank = 0
	assert.Equal(t, -1, a.Compare(b))
}

func TestCompareNodes(t *testing.T) {
	plan := testPlan("/bin/a")
	c := testCreator()

	running := newReplica(c, "v1", plan)
	runWorker(t, running.Current(), now0)
	idle1 := newReplica(c, "v1", plan)
	idle2 := newReplica(c, "v1", plan)
	released := newReplica(c, "v1", plan)
	released.Release()
	reclaimed := newReplica(c, "v1", plan)
	slot := runWorker(t, reclaimed.Current(), now0)
	slot.Reclaiming = true
	reclaimed.Current().UpdateSlot(&slot)

	nodes := []*Node{running, idle2, reclaimed, released, idle1}
	slices.SortStableFunc(nodes, Compare)
	assert.Equal(t, []string{released.ID(), idle1.ID(), idle2.ID(), reclaimed.ID(), running.ID()}, ids(nodes))

	sorted := []*Node{idle1, running, released, idle2, reclaimed}
	Sort(sorted)
	assert.Equal(t, ids(nodes), ids(sorted), "Sort agrees with Compare")

	// ties are broken by id in both directions
	assert.Equal(t, -1, Compare(idle1, idle2))
	assert.Equal(t, 1, Compare(idle2, idle1))
	assert.Zero(t, Compare(idle1, idle1))
}

func TestScoreOf(t *testing.T) {
	plan := testPlan("/bin/a")
	n := newReplica(testCreator(), "v1", plan)

	s := ScoreOf(n)
	assert.True(t, s.NotReleasing)
	assert.False(t, s.Available)
	assert.Equal(t, serviceRank[types.ServiceUnknown], s.ServiceRank)
	assert.Equal(t, slotStatusRank[types.SlotUnknown], s.SlotRank)
	assert.Equal(t, preferenceRank[types.PreferenceNormal], s.PreferenceRank)

	slot := runWorker(t, n.Current(), now0)
	slot.Preference = types.PreferenceRelease
	n.Current().UpdateSlot(&slot)
	n.Current().UpdateService(types.ServiceInfo{Status: types.ServiceAvailable, Score: 7}, true)

	s = ScoreOf(n)
	assert.True(t, s.Available)
	assert.Equal(t, int64(7), s.ServiceScore)
	assert.Equal(t, slotStatusRank[types.SlotRunning], s.SlotRank)
	assert.Equal(t, preferenceRank[types.PreferenceRelease], s.PreferenceRank)
}

func TestCompareForHold(t *testing.T) {
	v1 := testPlan("/bin/a")
	v2 := testPlan("/bin/b")
	c := testCreator()

	reached := newReplica(c, "v2", v2)
	slot := runWorker(t, reached.Current(), now0)
	// reached but not ready ranks lower in Compare
	reached.Current().UpdateHealth(types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerNotReady}, true)
	reached.Current().UpdateSlot(&slot)
	reached.Current().Schedule(now0)
	require.True(t, reached.TargetHasReached())

	pending := newReplica(c, "v1", v1)
	runWorker(t, pending.Current(), now0)
	pending.SetPlan("v2", v2)
	pending.Current().Schedule(now0)
	require.False(t, pending.TargetHasReached())

	assert.Equal(t, -1, Compare(reached, pending))
	assert.Equal(t, 1, CompareForHold(reached, pending))

	nodes := []*Node{reached, pending}
	Sort(nodes)
	assert.Equal(t, []string{reached.ID(), pending.ID()}, ids(nodes))
	SortForHold(nodes)
	assert.Equal(t, []string{pending.ID(), reached.ID()}, ids(nodes))
}
