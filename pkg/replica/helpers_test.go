package replica

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rolekeeper/pkg/types"
	"github.com/cuemby/rolekeeper/pkg/worker"
)

var now0 = time.Unix(1_700_000_000, 0)

var ready = types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerReady}

func testPlan(cmd string) *types.ExtVersionedPlan {
	return types.NewExtVersionedPlan("guid", types.VersionedPlan{
		ResourcePlan: types.ResourcePlan{Resources: []types.SlotResource{{Name: "cpu", Amount: 100}}},
		LaunchPlan:   types.LaunchPlan{Processes: []types.ProcessInfo{{Name: "srv", Cmd: cmd}}},
	})
}

func newReplica(c *Creator, version string, plan *types.ExtVersionedPlan) *Node {
	n := c.Create()
	n.SetPlan(version, plan)
	n.SetFinalPlan(version, plan)
	return n
}

func testCreator() *Creator {
	return NewCreator("r", 0, zerolog.Nop())
}

var slotSeq int32

func nextSlot(plan *types.ExtVersionedPlan) types.SlotInfo {
	slotSeq++
	return types.SlotInfo{
		ResourceTag:   plan.ResourceTag,
		SlotID:        types.SlotID{SlaveAddress: "10.0.0.1:7000", ID: slotSeq},
		SlaveStatus:   types.SlaveAlive,
		RequirementID: plan.ResourceChecksum,
	}
}

// runWorker assigns w a slot running its launch plan and marks it healthy
func runWorker(t *testing.T, w *worker.Node, now time.Time) types.SlotInfo {
	t.Helper()
	slot := nextSlot(w.NextPlan())
	require.True(t, w.AssignSlot(slot), "worker %s already assigned", w.ID())
	slot.ProcessStatus = types.ProcessRunning
	slot.LaunchSignature = w.LaunchPlan().Signature()
	w.UpdateSlot(&slot)
	w.UpdateHealth(ready, true)
	w.Schedule(now)
	require.True(t, w.IsCompleted(), "worker %s not completed", w.ID())
	return slot
}

// failSlot reports the worker's slot as dead
func failSlot(w *worker.Node) {
	slot := w.Slot()
	slot.SlaveStatus = types.SlaveDead
	w.UpdateSlot(slot)
}

func ids(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID())
	}
	return out
}

func rid(i int) string {
	return fmt.Sprintf("r-%08d", i)
}
