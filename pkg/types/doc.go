/*
Package types defines the data model shared by every rolekeeper package.

A role is driven by plans. The GlobalPlan carries role-wide targets (count,
latest version ratio, health floor, extra ratio, recovery quota) and the
VersionedPlan carries what a single version runs: its ResourcePlan, which is
what the scheduler allocates, and its LaunchPlan, which is what runs inside
the slot.

# Derived plan metadata

When a version is first registered it is wrapped in an ExtVersionedPlan:

	ext := types.NewExtVersionedPlan(roleGUID, plan)
	ext.ResourceTag      // "<roleGUID>.<checksum prefix>"
	ext.ResourceChecksum // xxhash of the resource plan, sent as requirement id

Two versions with the same resource plan share a resource tag, so a version
change that only touches the launch plan upgrades workers in place without
reallocating slots. Later pushes of the same version only merge broadcast
fields (MergeBroadcast), never the derived ones.

# Slots

SlotInfo is the scheduler's view of one slot. SlotInfo.Status folds slave,
package, data and process status into a single SlotStatus used for ranking
replicas:

	SS_PACKAGE_FAILED < SS_PROC_FAILED < SS_DEAD < SS_RESTARTING < SS_UNKNOWN < SS_RUNNING

# Health and service

HealthInfo and ServiceInfo are produced by the health checker and the
service switch for one worker node. WorkerSnapshot is the read-only view of
a worker handed back to those collaborators.
*/
package types
