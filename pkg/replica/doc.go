/*
Package replica implements the replica node, the logical unit of a role.

A replica always owns a current worker. When that worker goes bad the
replica opens a backup worker on the same target version and, once the
backup completes, promotes it and releases the old one:

	current bad or released, no backup
	    │  broken? charge the BrokenRecoverQuota (deny → retry next cycle)
	    ▼
	backup created ──(smoothRecover=false)──▶ current released at once
	    │
	    ├── backup completed on target   ──▶ swap, old current released
	    ├── backup bad or current healthy ──▶ backup released
	    └── backup released               ──▶ backup dropped

Only broken workers (lost, dead, reclaimed, failed slot) consume quota.
Workers that merely miss a plan or readiness timeout are replaced freely.

# Ranking

Score ranks replicas from least to most important on their current worker:
not releasing, available, service status and score, worker status, health,
slot status, not reclaiming, slot preference. Compare breaks ties by id so
every sort is deterministic. CompareForHold puts replicas that already run
their target first and is used to pick which replicas survive an update.

Selector groups the non-releasing replicas by version and hands out the
lowest ranked ones as redundant, never cutting a version below its holding
count.
*/
package replica
