/*
Package worker implements the worker node: one physical binding of a replica
to a scheduler slot, and the state machine that tracks it.

A worker node never talks to the scheduler, the health checker or the
service switch. The role feeds it observations (UpdateSlot, UpdateHealth,
UpdateService), calls Schedule once per cycle, and the executor reads the
result (IsNeedSlot, ReadyToLaunch, ReleasingSlot) to build scheduler calls.

# Slot lifecycle

	UNASSIGNED ──AssignSlot──▶ ASSIGNED ──slot gone──▶ LOST ─┐
	    │                         │                          │ Release
	    │ Release                 │ Release                  ▼
	    │                         ├── published ──▶ OFFLINING ──▶ RELEASING ──slot gone──▶ RELEASED
	    │                         └──────────────────────────────▶ RELEASING
	    └────────────────────────────────────────────────────────────────────────────────▶ RELEASED

States never move backwards and RELEASED is terminal. A worker that was
released while still unassigned goes straight to RELEASED.

# Plan matching

While ASSIGNED, each Schedule call re-walks the steps from BEGIN against the
latest observation and stops at the first one not satisfied:

	BEGIN
	PROCESS_UPDATE_GRACEFULLY  unpublish before replacing a running version
	PROCESS_RESOURCE_PLAN      slot.RequirementID == plan.ResourceChecksum
	PROCESS_LAUNCH_PLAN        slot runs the launch plan tagged with the worker id
	PROCESS_HEALTH_INFO        HT_ALIVE and WT_READY
	PROCESS_SERVICE_INFO       published (or unpublished for offline plans)

Re-walking means a slot that regresses (a process restart, a dead slave) is
reflected in the very next cycle.

# Bad state

InBadState tells the owning replica that the worker should be replaced:

	lost / dead / reclaim    the slot is gone or failed (IsBroken)
	resourceTagNotMatch      the target version needs a different resource tag
	resourceNotMatch         resources not matched for NotMatchTimeout (default 300s)
	processNotMatch          launch plan not matched for NotMatchTimeout
	notReady                 not ready for NotReadyTimeout (default 600s)

A negative timeout in the versioned plan disables the corresponding check.
Only broken workers consume recovery quota.

# Persistence

Snapshot and Recover round-trip everything a restarted daemon needs: ids,
alloc state, slot, versions, release flags and the not-match/not-ready
timers as unix milliseconds.
*/
package worker
