/*
Package role reconciles one service role: it owns the plans of every live
version, the replicas running them and the collaborators that judge and
publish their workers.

# Cycle

A role is driven from outside in three steps that never overlap:

	Update(ctx)    slots, health and service verdicts flow into the workers
	Schedule(p)    slots are mapped, replicas adjusted and scheduled
	Execute(ctx)   allocation, launch and tag release calls are sent

Schedule does nothing while the health checker or the service switch is not
working. Update and Execute fail with hippo.ErrNotWorking while the
scheduler adapter is down.

# Plans

SetPlan registers a version as the latest target. A version seen before
only takes the broadcast fields of the new plan; its resource tag and
launch plan never change. Versions no replica or worker refers to any more
are dropped after each Schedule, the latest one is always kept.

# Lifecycle

	New ─▶ Init(snapshot) ─▶ SetPlan ─▶ cycles ... ─▶ Stop ─▶ cycles ─▶ IsStopped ─▶ Close

Stop sets the target count to zero; the role keeps releasing replicas until
none is left. Snapshot and Init round trip the whole role, including the
replica id sequence.
*/
package role
