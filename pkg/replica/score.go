package replica

import (
	"cmp"
	"slices"
	"strings"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// Rank tables, lowest rank is the first to drop
var (
	serviceRank = map[types.ServiceStatus]int{
		types.ServiceUnavailable:   0,
		types.ServiceUnknown:       1,
		types.ServicePartAvailable: 2,
		types.ServiceAvailable:     3,
	}

	workerStatusRank = map[types.WorkerStatus]int{
		types.WorkerUnknown:  0,
		types.WorkerNotReady: 1,
		types.WorkerReady:    2,
	}

	healthRank = map[types.HealthStatus]int{
		types.HealthDead:    0,
		types.HealthUnknown: 1,
		types.HealthLost:    2,
		types.HealthAlive:   3,
	}

	slotStatusRank = map[types.SlotStatus]int{
		types.SlotPackageFailed: 0,
		types.SlotProcFailed:    1,
		types.SlotDead:          2,
		types.SlotRestarting:    3,
		types.SlotUnknown:       4,
		types.SlotRunning:       5,
	}

	preferenceRank = map[types.SlotPreference]int{
		types.PreferenceRelease: 0,
		types.PreferenceNormal:  1,
	}
)

// Score is the rank of a replica derived from its current worker. Fields
// are compared in declaration order.
type Score struct {
	NotReleasing   bool
	Available      bool
	ServiceRank    int
	ServiceScore   int64
	WorkerRank     int
	HealthRank     int
	SlotRank       int
	NotReclaiming  bool
	PreferenceRank int
}

// ScoreOf computes the score of a replica
func ScoreOf(n *Node) Score {
	w := n.mustCurrent()
	svc := w.Service()
	h := w.Health()
	return Score{
		NotReleasing:   !n.IsReleasing(),
		Available:      n.IsAvailable(),
		ServiceRank:    serviceRank[svc.Status],
		ServiceScore:   svc.Score,
		WorkerRank:     workerStatusRank[h.WorkerStatus],
		HealthRank:     healthRank[h.HealthStatus],
		SlotRank:       slotStatusRank[w.SlotStatus()],
		NotReclaiming:  !w.IsReclaiming(),
		PreferenceRank: preferenceRank[w.SlotPreference()],
	}
}

// Compare orders two scores, negative when s ranks lower than o
func (s Score) Compare(o Score) int {
	if c := compareBool(s.NotReleasing, o.NotReleasing); c != 0 {
		return c
	}
	if c := compareBool(s.Available, o.Available); c != 0 {
		return c
	}
	if c := cmp.Compare(s.ServiceRank, o.ServiceRank); c != 0 {
		return c
	}
	if c := cmp.Compare(s.ServiceScore, o.ServiceScore); c != 0 {
		return c
	}
	if c := cmp.Compare(s.WorkerRank, o.WorkerRank); c != 0 {
		return c
	}
	if c := cmp.Compare(s.HealthRank, o.HealthRank); c != 0 {
		return c
	}
	if c := cmp.Compare(s.SlotRank, o.SlotRank); c != 0 {
		return c
	}
	if c := compareBool(s.NotReclaiming, o.NotReclaiming); c != 0 {
		return c
	}
	return cmp.Compare(s.PreferenceRank, o.PreferenceRank)
}

// rank is everything the replica orderings look at, computed once per node
type rank struct {
	node    *Node
	score   Score
	reached bool
}

func rankOf(n *Node) rank {
	return rank{node: n, score: ScoreOf(n), reached: n.TargetHasReached()}
}

func (r rank) compare(o rank, hold bool) int {
	if hold {
		if c := compareBool(r.reached, o.reached); c != 0 {
			return c
		}
	}
	if c := r.score.Compare(o.score); c != 0 {
		return c
	}
	return strings.Compare(r.node.ID(), o.node.ID())
}

// Compare orders replicas from least to most important, ties broken by id
func Compare(a, b *Node) int {
	return rankOf(a).compare(rankOf(b), false)
}

// CompareForHold is Compare with target-reached as the most significant factor
func CompareForHold(a, b *Node) int {
	return rankOf(a).compare(rankOf(b), true)
}

// Sort orders nodes by Compare, scoring each node once
func Sort(nodes []*Node) {
	sortRanked(nodes, false)
}

// SortForHold orders nodes by CompareForHold, scoring each node once
func SortForHold(nodes []*Node) {
	sortRanked(nodes, true)
}

func sortRanked(nodes []*Node, hold bool) {
	ranks := make([]rank, len(nodes))
	for i, n := range nodes {
		ranks[i] = rankOf(n)
	}
	slices.SortFunc(ranks, func(a, b rank) int { return a.compare(b, hold) })
	for i := range ranks {
		nodes[i] = ranks[i].node
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
