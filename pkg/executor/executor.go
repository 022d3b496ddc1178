package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/cuemby/rolekeeper/pkg/hippo"
	"github.com/cuemby/rolekeeper/pkg/metrics"
	"github.com/cuemby/rolekeeper/pkg/types"
	"github.com/cuemby/rolekeeper/pkg/worker"
)

// Request is everything one Execute call sends to the scheduler
type Request struct {
	Allocations map[string]types.ResourceRequest
	Releases    map[types.SlotID]types.ReleasePreference
	Launches    map[types.SlotID]types.LaunchPlan
	Finals      map[types.SlotID]types.LaunchPlan

	// Referenced holds every tag a worker still uses
	Referenced map[string]bool
}

// Executor turns the workers of one role into scheduler calls. It is the
// only place a role cycle acts on the outside world.
type Executor struct {
	adapter  hippo.Adapter
	roleGUID string
	logger   zerolog.Logger

	appChecksum  int64
	allocDigest  uint64
	launchDigest uint64
}

// New creates an executor for the role identified by roleGUID
func New(adapter hippo.Adapter, roleGUID string, logger zerolog.Logger) *Executor {
	return &Executor{
		adapter:  adapter,
		roleGUID: roleGUID,
		logger:   logger.With().Str("component", "executor").Logger(),
	}
}

// Build computes the scheduler calls for workers. inventory is the slot
// inventory the workers were last mapped against.
func (e *Executor) Build(workers []*worker.Node, plans map[string]*types.ExtVersionedPlan,
	inventory map[types.SlotID]types.SlotInfo) Request {
	req := Request{
		Allocations: make(map[string]types.ResourceRequest),
		Releases:    make(map[types.SlotID]types.ReleasePreference),
		Launches:    make(map[types.SlotID]types.LaunchPlan),
		Finals:      make(map[types.SlotID]types.LaunchPlan),
		Referenced:  make(map[string]bool),
	}

	tagPlans := make(map[string]*types.ExtVersionedPlan)
	for _, v := range slices.Sorted(maps.Keys(plans)) {
		p := plans[v]
		if _, ok := tagPlans[p.ResourceTag]; !ok {
			tagPlans[p.ResourceTag] = p
		}
	}

	claimed := make(map[types.SlotID]bool, len(workers))
	for _, w := range workers {
		if id := w.SlotID(); !id.IsEmpty() {
			claimed[id] = true
		}

		tag := w.ResourceTag()
		if tag != "" {
			req.Referenced[tag] = true
			r, ok := req.Allocations[tag]
			if !ok {
				r = types.ResourceRequest{Tag: tag}
				if p, found := tagPlans[tag]; found {
					r.Plan = p.Plan.ResourcePlan.Clone()
					r.RequirementID = p.ResourceChecksum
				} else if p := w.NextPlan(); p != nil && p.ResourceTag == tag {
					r.Plan = p.Plan.ResourcePlan.Clone()
					r.RequirementID = p.ResourceChecksum
				}
			}
			if w.IsNeedSlot() {
				r.Count++
			}
			req.Allocations[tag] = r
		}

		if id, pref, ok := w.ReleasingSlot(); ok {
			req.Releases[id] = pref
		}

		if w.ReadyToLaunch() {
			id := w.SlotID()
			req.Launches[id] = w.LaunchPlan()
			req.Finals[id] = w.FinalLaunchPlan()
		}
	}

	for id, slot := range inventory {
		if claimed[id] || !e.owns(slot.ResourceTag) {
			continue
		}
		if _, ok := req.Releases[id]; !ok {
			req.Releases[id] = types.DefaultReleasePreference()
		}
	}

	// requests without a known plan are left to the scheduler as they are
	for tag, r := range req.Allocations {
		if r.RequirementID == "" {
			e.logger.Warn().Str("tag", tag).Msg("No plan for resource tag, request skipped")
			delete(req.Allocations, tag)
		}
	}
	return req
}

func (e *Executor) owns(tag string) bool {
	return strings.HasPrefix(tag, e.roleGUID+".")
}

// Execute builds the calls for workers and sends those that differ from the
// last successful ones. A changed app checksum forces a full resend.
func (e *Executor) Execute(ctx context.Context, workers []*worker.Node, plans map[string]*types.ExtVersionedPlan,
	inventory map[types.SlotID]types.SlotInfo) error {
	if sum := e.adapter.AppChecksum(); sum != e.appChecksum {
		if e.appChecksum != 0 {
			e.logger.Info().
				Int64("from", e.appChecksum).
				Int64("to", sum).
				Msg("Scheduler app checksum changed, resending")
		}
		e.appChecksum = sum
		e.allocDigest = 0
		e.launchDigest = 0
	}

	req := e.Build(workers, plans, inventory)

	if err := e.allocate(ctx, req); err != nil {
		return err
	}
	if err := e.launch(ctx, req); err != nil {
		return err
	}
	return e.releaseTags(ctx, req)
}

func (e *Executor) allocate(ctx context.Context, req Request) error {
	digest := allocationDigest(req)
	if digest == e.allocDigest {
		return nil
	}
	err := e.adapter.AllocateSlots(ctx, req.Allocations, req.Releases)
	metrics.AdapterCalls.WithLabelValues("allocate", metrics.Status(err)).Inc()
	if err != nil {
		e.allocDigest = 0
		return fmt.Errorf("failed to allocate slots: %w", err)
	}
	e.allocDigest = digest
	if len(req.Releases) > 0 {
		metrics.SlotsReleased.WithLabelValues(e.roleGUID).Add(float64(len(req.Releases)))
	}
	e.logger.Debug().
		Int("tags", len(req.Allocations)).
		Int("releases", len(req.Releases)).
		Msg("Slots allocated")
	return nil
}

func (e *Executor) launch(ctx context.Context, req Request) error {
	if len(req.Launches) == 0 {
		return nil
	}
	digest := launchDigest(req)
	if digest == e.launchDigest {
		return nil
	}
	err := e.adapter.LaunchSlots(ctx, req.Launches, req.Finals)
	metrics.AdapterCalls.WithLabelValues("launch", metrics.Status(err)).Inc()
	if err != nil {
		e.launchDigest = 0
		return fmt.Errorf("failed to launch slots: %w", err)
	}
	e.launchDigest = digest
	e.logger.Debug().Int("slots", len(req.Launches)).Msg("Slots launched")
	return nil
}

func (e *Executor) releaseTags(ctx context.Context, req Request) error {
	tags, err := e.adapter.GetAllTags(ctx)
	metrics.AdapterCalls.WithLabelValues("get_tags", metrics.Status(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}
	for _, tag := range tags {
		if !e.owns(tag) {
			continue
		}
		if req.Referenced[tag] {
			continue
		}
		err := e.adapter.ReleaseTag(ctx, tag)
		metrics.AdapterCalls.WithLabelValues("release_tag", metrics.Status(err)).Inc()
		if err != nil {
			return fmt.Errorf("failed to release tag %s: %w", tag, err)
		}
		e.allocDigest = 0
		e.logger.Info().Str("tag", tag).Msg("Unused resource tag released")
	}
	return nil
}

// ReleaseAll drops every tag the role owns. Used once a stopped role has
// no workers left.
func (e *Executor) ReleaseAll(ctx context.Context) error {
	return e.releaseTags(ctx, Request{})
}

type slotRelease struct {
	Slot types.SlotID            `json:"slot"`
	Pref types.ReleasePreference `json:"pref"`
}

type slotLaunch struct {
	Slot    types.SlotID `json:"slot"`
	Current int64        `json:"current"`
	Final   int64        `json:"final"`
}

func allocationDigest(req Request) uint64 {
	releases := make([]slotRelease, 0, len(req.Releases))
	for id, pref := range req.Releases {
		releases = append(releases, slotRelease{Slot: id, Pref: pref})
	}
	slices.SortFunc(releases, func(a, b slotRelease) int { return a.Slot.Compare(b.Slot) })
	return digest(struct {
		Allocations map[string]types.ResourceRequest `json:"allocations"`
		Releases    []slotRelease                    `json:"releases"`
	}{req.Allocations, releases})
}

func launchDigest(req Request) uint64 {
	launches := make([]slotLaunch, 0, len(req.Launches))
	for id, plan := range req.Launches {
		launches = append(launches, slotLaunch{Slot: id, Current: plan.Signature(), Final: req.Finals[id].Signature()})
	}
	slices.SortFunc(launches, func(a, b slotLaunch) int { return a.Slot.Compare(b.Slot) })
	return digest(launches)
}

func digest(v any) uint64 {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("executor digest: %v", err))
	}
	// zero means "nothing sent yet"
	return xxhash.Sum64(data) | 1
}
