package replica

import (
	"slices"
)

// Selector is a read-only view over the non-releasing replicas of a role,
// grouped by version and sorted from least to most important
type Selector struct {
	latestVersion string
	holding       map[string]int32
	groups        map[string][]*Node
	oldVersions   []string
}

// NewSelector builds a selector over nodes
func NewSelector(nodes []*Node, latestVersion string, holding map[string]int32) *Selector {
	s := &Selector{
		latestVersion: latestVersion,
		holding:       holding,
		groups:        make(map[string][]*Node),
	}
	for _, n := range nodes {
		if n.IsReleasing() {
			continue
		}
		s.groups[n.Version()] = append(s.groups[n.Version()], n)
	}
	for version, group := range s.groups {
		Sort(group)
		if version != latestVersion {
			s.oldVersions = append(s.oldVersions, version)
		}
	}
	slices.Sort(s.oldVersions)
	return s
}

// LatestVersionCount returns the number of replicas at the latest version
func (s *Selector) LatestVersionCount() int {
	return len(s.groups[s.latestVersion])
}

// OldVersionCount returns the number of replicas at any other version
func (s *Selector) OldVersionCount() int {
	total := 0
	for _, v := range s.oldVersions {
		total += len(s.groups[v])
	}
	return total
}

// OldVersions returns the non-latest versions in ascending order
func (s *Selector) OldVersions() []string {
	return slices.Clone(s.oldVersions)
}

// PickupLatestRedundantNodes returns up to count of the lowest-ranked latest
// replicas, never cutting into the version's holding count
func (s *Selector) PickupLatestRedundantNodes(count int) []*Node {
	return s.pickup(s.latestVersion, count)
}

// PickupOldRedundantNodes applies the same policy across old versions in
// ascending version order until count replicas are picked
func (s *Selector) PickupOldRedundantNodes(count int) []*Node {
	var out []*Node
	for _, v := range s.oldVersions {
		if len(out) >= count {
			break
		}
		out = append(out, s.pickup(v, count-len(out))...)
	}
	return out
}

func (s *Selector) pickup(version string, count int) []*Node {
	group := s.groups[version]
	limit := min(count, len(group)-int(s.holding[version]))
	if limit <= 0 {
		return nil
	}
	return slices.Clone(group[:limit])
}
