package executor

import (
	"slices"
	"strings"

	"github.com/cuemby/rolekeeper/pkg/types"
	"github.com/cuemby/rolekeeper/pkg/worker"
)

// Assignment is one slot handed to a worker by MapSlots
type Assignment struct {
	WorkerID string
	Slot     types.SlotID
}

// MapSlots gives each unassigned worker a free slot of its resource tag.
// Workers are served in id order and slots in SlotID order; slots on dead
// slaves or being reclaimed are never handed out. Workers left over wait
// for a later cycle.
func MapSlots(inventory map[types.SlotID]types.SlotInfo, workers []*worker.Node) []Assignment {
	claimed := make(map[types.SlotID]bool, len(workers))
	waiting := make(map[string][]*worker.Node)
	for _, w := range workers {
		if id := w.SlotID(); !id.IsEmpty() {
			claimed[id] = true
		}
		if w.IsUnAssignedSlot() && !w.IsReleasing() {
			tag := w.ResourceTag()
			waiting[tag] = append(waiting[tag], w)
		}
	}
	if len(waiting) == 0 {
		return nil
	}

	free := make(map[string][]types.SlotInfo)
	for id, slot := range inventory {
		if claimed[id] || slot.SlaveStatus == types.SlaveDead || slot.Reclaiming {
			continue
		}
		if _, ok := waiting[slot.ResourceTag]; ok {
			free[slot.ResourceTag] = append(free[slot.ResourceTag], slot)
		}
	}

	var out []Assignment
	tags := make([]string, 0, len(waiting))
	for tag := range waiting {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	for _, tag := range tags {
		ws := waiting[tag]
		slots := free[tag]
		slices.SortFunc(ws, func(a, b *worker.Node) int { return strings.Compare(a.ID(), b.ID()) })
		slices.SortFunc(slots, func(a, b types.SlotInfo) int { return a.SlotID.Compare(b.SlotID) })
		for i := 0; i < len(ws) && i < len(slots); i++ {
			if ws[i].AssignSlot(slots[i]) {
				out = append(out, Assignment{WorkerID: ws[i].ID(), Slot: slots[i].SlotID})
			}
		}
	}
	return out
}
