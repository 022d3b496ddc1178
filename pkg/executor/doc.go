/*
Package executor turns the workers of a role into scheduler calls.

MapSlots runs during a schedule cycle and binds unassigned workers to free
slots of their resource tag. Execute runs afterwards and builds:

  - one ResourceRequest per tag, counting the workers that need a slot
  - the release set: slots of releasing workers with their preference, and
    slots of the role's tags that no worker claims, with the default one
  - the launch plans of workers ready to launch, current and final, with
    ROLEKEEPER_WORKER_NODE_ID set on every process

Tags owned by the role (prefixed with its GUID) that no worker uses any
more are dropped with ReleaseTag.

Allocation and launch calls are only sent when their content changed since
the last successful call. A failed call or a new scheduler app checksum
clears that memory, so the next cycle sends everything again.
*/
package executor
