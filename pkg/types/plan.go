package types

import (
	"fmt"
)

// resourceTagChecksumLen is how many hex digits of the resource checksum
// end up in a resource tag
const resourceTagChecksumLen = 8

// ExtVersionedPlan is a VersionedPlan plus metadata derived once per version.
// Derived fields never change on later pushes of the same version so that
// slots are not reallocated and processes are not restarted needlessly.
type ExtVersionedPlan struct {
	Plan               VersionedPlan `json:"plan"`
	ResourceTag        string        `json:"resourceTag"`
	ResourceChecksum   string        `json:"resourceChecksum"`
	AvailableCountBase int32         `json:"availableCountBase"`
	ProcessVersion     string        `json:"processVersion"`

	// ServiceRequired is refreshed from the global plan's service configs
	ServiceRequired bool `json:"serviceRequired"`
}

// NewExtVersionedPlan derives the metadata of a freshly registered version
func NewExtVersionedPlan(roleGUID string, plan VersionedPlan) *ExtVersionedPlan {
	sum := ResourceChecksum(plan.ResourcePlan)
	return &ExtVersionedPlan{
		Plan:             plan.Clone(),
		ResourceTag:      ResourceTag(roleGUID, sum),
		ResourceChecksum: sum,
		ProcessVersion:   fmt.Sprintf("%016x", uint64(plan.LaunchPlan.Signature())),
	}
}

// MergeBroadcast copies only the fields meant to be broadcast live
func (e *ExtVersionedPlan) MergeBroadcast(plan VersionedPlan) {
	p := plan.Clone()
	e.Plan.CustomInfo = p.CustomInfo
	e.Plan.UserDefVersion = p.UserDefVersion
	e.Plan.Online = p.Online
	e.Plan.UpdatingGracefully = p.UpdatingGracefully
	e.Plan.NotMatchTimeout = p.NotMatchTimeout
	e.Plan.NotReadyTimeout = p.NotReadyTimeout
}

// FixChecksum recomputes the resource checksum of a recovered plan. The
// resource tag is kept so the role still owns the slots it had.
func (e *ExtVersionedPlan) FixChecksum(roleGUID string) {
	e.ResourceChecksum = ResourceChecksum(e.Plan.ResourcePlan)
	if e.ResourceTag == "" {
		e.ResourceTag = ResourceTag(roleGUID, e.ResourceChecksum)
	}
	if e.ProcessVersion == "" {
		e.ProcessVersion = fmt.Sprintf("%016x", uint64(e.Plan.LaunchPlan.Signature()))
	}
}

// Clone returns a deep copy
func (e *ExtVersionedPlan) Clone() *ExtVersionedPlan {
	if e == nil {
		return nil
	}
	out := *e
	out.Plan = e.Plan.Clone()
	return &out
}

// ResourceChecksum returns the requirement id of a resource plan
func ResourceChecksum(plan ResourcePlan) string {
	return fmt.Sprintf("%016x", checksum(plan))
}

// ResourceTag builds the tag grouping all slots of a role with identical resources
func ResourceTag(roleGUID, resourceChecksum string) string {
	sum := resourceChecksum
	if len(sum) > resourceTagChecksumLen {
		sum = sum[:resourceTagChecksumLen]
	}
	return roleGUID + "." + sum
}
