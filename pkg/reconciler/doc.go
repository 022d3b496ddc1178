/*
Package reconciler drives every role of a rolekeeper process.

The reconciler owns the role registry. Two loops run against it: the
schedule loop (about once a second) and the update loop (about every three
seconds). Both fan out over the roles on a bounded errgroup, give each role
its own deadline and never let one failing role cancel the others.

# Architecture

	┌──────────────────────────────────────────────────────────┐
	│                       Reconciler                         │
	│                                                          │
	│   schedule ticker (1s)            update ticker (3s)     │
	│          │                               │               │
	│          ▼                               ▼               │
	│   ┌──────────────┐               ┌──────────────┐        │
	│   │ ScheduleOnce │               │  UpdateOnce  │        │
	│   └──────┬───────┘               └──────┬───────┘        │
	│          │ errgroup, SetLimit(Workers)  │                │
	│          ▼                              ▼                │
	│   Schedule + Execute              Update (slots,         │
	│   persist snapshot                health, services)      │
	│   remove stopped roles                                   │
	└──────────┬───────────────────────────────────────────────┘
	           │
	           ▼
	   storage.Store (bbolt)

The two passes are serialized: a schedule pass never runs while an update
pass is observing the same roles.

# Persistence

After every schedule pass each role's snapshot is written to the store,
retried a few times with backoff. A role that reached IsStopped is closed,
which releases its resource tags, and its record is deleted. Restore
rebuilds the registry from the store at start; a record that cannot be
decoded or recovered fails Restore.

# Plans

Apply pushes a plan version to a role by group and role id. Unknown roles
are built with the Factory and only registered once their first plan was
accepted, so a rejected plan leaves nothing behind.

# Metrics

	rolekeeper_reconciliation_duration_seconds{phase}
	rolekeeper_reconciliation_cycles_total{phase,status}
	rolekeeper_snapshot_writes_total{status}
	rolekeeper_roles_total

RoleStats makes the reconciler a metrics.StatsSource for the per-role gauges.

# Usage

	rec := reconciler.New(reconciler.Config{Workers: 8}, store, factory, logger)
	if err := rec.Restore(); err != nil {
		return err
	}
	if err := rec.Apply("search", "qrs", guid, "v1", plan); err != nil {
		return err
	}
	rec.Start()
	defer rec.Stop()
*/
package reconciler
