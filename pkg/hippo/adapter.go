package hippo

import (
	"context"
	"errors"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// ErrNotWorking is returned by adapters that lost their scheduler connection
var ErrNotWorking = errors.New("scheduler adapter not working")

// Adapter is the role's view of the resource scheduler. Calls may be slow
// and are always made from a single role cycle at a time.
type Adapter interface {
	// AllocateSlots sets the wanted slot count per resource tag and hands
	// back the released slots with their preference
	AllocateSlots(ctx context.Context, requests map[string]types.ResourceRequest,
		releases map[types.SlotID]types.ReleasePreference) error

	// LaunchSlots pushes the launch plan of each slot. final is the plan the
	// slot eventually converges to, for staged in-place updates.
	LaunchSlots(ctx context.Context, current, final map[types.SlotID]types.LaunchPlan) error

	// GetSlotsByTags returns the slots of the given tags
	GetSlotsByTags(ctx context.Context, tags []string) (map[types.SlotID]types.SlotInfo, error)

	// GetAllTags returns every tag with a request or a slot
	GetAllTags(ctx context.Context) ([]string, error)

	// ReleaseTag drops the request of a tag and all its slots
	ReleaseTag(ctx context.Context, tag string) error

	IsWorking() bool

	// AppChecksum changes when the scheduler lost state and every request
	// must be sent again
	AppChecksum() int64
}
