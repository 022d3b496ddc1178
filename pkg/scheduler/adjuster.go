package scheduler

import (
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/rolekeeper/pkg/replica"
	"github.com/cuemby/rolekeeper/pkg/types"
)

// Input is everything one adjustment needs besides the replicas themselves
type Input struct {
	Global        types.GlobalPlan
	Plans         map[string]*types.ExtVersionedPlan
	LatestVersion string
	Params        types.ScheduleParams
}

// Result reports what an adjustment changed
type Result struct {
	// Nodes is the live replica collection after the adjustment
	Nodes []*replica.Node

	Created  []*replica.Node
	Released []*replica.Node
	Repinned []*replica.Node
	Dropped  []*replica.Node
}

// Adjuster adds, removes and re-versions the replicas of one role so
// their counts per version converge on the global plan
type Adjuster struct {
	creator *replica.Creator
	logger  zerolog.Logger
}

// NewAdjuster creates an adjuster that makes new replicas with creator
func NewAdjuster(creator *replica.Creator, logger zerolog.Logger) *Adjuster {
	return &Adjuster{
		creator: creator,
		logger:  logger.With().Str("component", "adjuster").Logger(),
	}
}

// Targets splits count between the latest version and the old ones. With a
// single live version everything goes to latest.
func Targets(count, latestVersionRatio int32, versions int) (latest, old int32) {
	count = max(0, count)
	if versions <= 1 {
		return count, 0
	}
	ratio := min(max(0, latestVersionRatio), 100)
	latest = (count*ratio + 99) / 100
	return latest, count - latest
}

// Adjust runs one adjustment over nodes. The returned Result.Nodes replaces
// the caller's collection.
func (a *Adjuster) Adjust(nodes []*replica.Node, in Input) Result {
	res := Result{}
	latestPlan, ok := in.Plans[in.LatestVersion]
	if !ok {
		a.logger.Error().
			Str("version", in.LatestVersion).
			Msg("Latest version plan not found, skipping adjustment")
		res.Nodes = a.dropReleased(nodes, &res)
		return res
	}

	targetLatest, targetOld := Targets(in.Global.Count, in.Global.LatestVersionRatio, len(in.Plans))

	sel := replica.NewSelector(nodes, in.LatestVersion, in.Params.HoldingCountMap)
	curLatest := int32(sel.LatestVersionCount())
	curOld := int32(sel.OldVersionCount())

	pool := sel.PickupLatestRedundantNodes(int(max(0, curLatest-targetLatest)))
	pool = append(pool, sel.PickupOldRedundantNodes(int(max(0, curOld-targetOld)))...)

	pool = a.holdExtras(nodes, pool, in)

	total := len(nodes)
	if need := targetLatest - curLatest; need > 0 {
		var created []*replica.Node
		pool, created = a.supplement(pool, int(need), in.LatestVersion, latestPlan, in.Params.MaxCount, total, &res)
		nodes = append(nodes, created...)
		total += len(created)
	}

	if need := targetOld - curOld; need > 0 {
		oldVersion := selectVersion(in.Plans, in.LatestVersion)
		if oldPlan, ok := in.Plans[oldVersion]; ok {
			var created []*replica.Node
			pool, created = a.supplement(pool, int(need), oldVersion, oldPlan, in.Params.MaxCount, total, &res)
			nodes = append(nodes, created...)
		} else {
			a.logger.Error().Str("version", oldVersion).Msg("Old version plan not found")
		}
	}

	pool = a.replaceUnassigned(nodes, pool, in.Plans, &res)

	for _, n := range pool {
		if n.IsReleasing() {
			continue
		}
		n.Release()
		res.Released = append(res.Released, n)
	}

	res.Nodes = a.dropReleased(nodes, &res)

	if len(res.Created)+len(res.Released)+len(res.Repinned) > 0 {
		a.logger.Info().
			Int32("targetLatest", targetLatest).
			Int32("targetOld", targetOld).
			Int32("curLatest", curLatest).
			Int32("curOld", curOld).
			Int("created", len(res.Created)).
			Int("released", len(res.Released)).
			Int("repinned", len(res.Repinned)).
			Msg("Replicas adjusted")
	}
	return res
}

// holdExtras keeps the healthiest available candidates out of the pool
// while releasing them would break the health floor
func (a *Adjuster) holdExtras(nodes, pool []*replica.Node, in Input) []*replica.Node {
	floor := min(in.Params.MinHealthCount, max(0, in.Global.Count)) - in.Params.HoldingSum()
	if floor <= 0 || len(pool) == 0 {
		return pool
	}

	inPool := make(map[*replica.Node]bool, len(pool))
	for _, n := range pool {
		inPool[n] = true
	}
	var available int32
	for _, n := range nodes {
		if !n.IsReleasing() && !inPool[n] && n.IsAvailable() {
			available++
		}
	}
	need := floor - available
	if need <= 0 {
		return pool
	}

	candidates := slices.Clone(pool)
	replica.SortForHold(candidates)
	slices.Reverse(candidates)
	held := make(map[*replica.Node]bool)
	for _, n := range candidates {
		if int32(len(held)) >= need {
			break
		}
		if n.IsAvailable() {
			held[n] = true
		}
	}
	if len(held) == 0 {
		return pool
	}
	a.logger.Info().
		Int32("floor", floor).
		Int32("available", available).
		Int("held", len(held)).
		Msg("Holding redundant replicas for health floor")
	return slices.DeleteFunc(pool, func(n *replica.Node) bool { return held[n] })
}

// supplement fills need replicas at version, first by repinning pool
// replicas, then by creating new ones within maxCount
func (a *Adjuster) supplement(pool []*replica.Node, need int, version string, plan *types.ExtVersionedPlan,
	maxCount int32, total int, res *Result) ([]*replica.Node, []*replica.Node) {
	var rest []*replica.Node
	for _, n := range pool {
		if need > 0 && !n.IsReleasing() {
			if n.Version() != version {
				n.SetPlan(version, plan)
				res.Repinned = append(res.Repinned, n)
			}
			need--
			continue
		}
		rest = append(rest, n)
	}

	quota := max(0, int(maxCount)-total)
	if need > quota {
		a.logger.Warn().
			Str("version", version).
			Int("need", need).
			Int32("maxCount", maxCount).
			Int("total", total).
			Msg("Replica creation capped by max count")
		need = quota
	}
	created := make([]*replica.Node, 0, need)
	for i := 0; i < need; i++ {
		n := a.creator.Create()
		n.SetPlan(version, plan)
		created = append(created, n)
		res.Created = append(res.Created, n)
	}
	return rest, created
}

// replaceUnassigned hands the slots of assigned pool replicas to replicas
// still waiting for one. Waiting replicas are taken by id, donors by id.
func (a *Adjuster) replaceUnassigned(nodes, pool []*replica.Node, plans map[string]*types.ExtVersionedPlan,
	res *Result) []*replica.Node {
	inPool := make(map[*replica.Node]bool, len(pool))
	for _, n := range pool {
		inPool[n] = true
	}

	var waiting []*replica.Node
	for _, n := range nodes {
		if !inPool[n] && !n.IsReleasing() && n.Backup() == nil && n.IsUnAssigned() {
			waiting = append(waiting, n)
		}
	}
	if len(waiting) == 0 {
		return pool
	}
	slices.SortFunc(waiting, byID)

	var donors []*replica.Node
	for _, n := range pool {
		if !n.IsReleasing() && !n.IsUnAssigned() {
			donors = append(donors, n)
		}
	}
	slices.SortFunc(donors, byID)

	swapped := make(map[*replica.Node]bool)
	for i := 0; i < len(waiting) && i < len(donors); i++ {
		w, d := waiting[i], donors[i]
		plan, ok := plans[w.Version()]
		if !ok {
			a.logger.Error().
				Str("replica", w.ID()).
				Str("version", w.Version()).
				Msg("Version plan not found for unassigned replica")
			continue
		}
		if d.Version() != w.Version() {
			d.SetPlan(w.Version(), plan)
			res.Repinned = append(res.Repinned, d)
		}
		swapped[d] = true
		pool = append(pool, w)
		a.logger.Info().
			Str("replica", w.ID()).
			Str("donor", d.ID()).
			Str("version", w.Version()).
			Msg("Unassigned replica replaced by assigned one")
	}
	return slices.DeleteFunc(pool, func(n *replica.Node) bool { return swapped[n] })
}

func (a *Adjuster) dropReleased(nodes []*replica.Node, res *Result) []*replica.Node {
	out := make([]*replica.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.IsReleased() {
			res.Dropped = append(res.Dropped, n)
			continue
		}
		out = append(out, n)
	}
	return out
}

// selectVersion returns the first non-latest version in ascending order, or latest
func selectVersion(plans map[string]*types.ExtVersionedPlan, latest string) string {
	versions := make([]string, 0, len(plans))
	for v := range plans {
		if v != latest {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return latest
	}
	slices.Sort(versions)
	return versions[0]
}

func byID(x, y *replica.Node) int {
	return strings.Compare(x.ID(), y.ID())
}
