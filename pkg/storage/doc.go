/*
Package storage persists role state in BoltDB.

Each role is stored as one RoleRecord under the key "<group>/<role>" in the
"roles" bucket of <data dir>/rolekeeper.db. The record carries the encoded
role snapshot (plans plus the replica and worker tree) as raw JSON, so the
store does not depend on the role package and old snapshots stay readable by
whoever knows their schema version.

	rolekeeper.db
	└── roles
	    ├── search/bs   → {"key":..., "roleGuid":..., "snapshot":{...}}
	    └── search/qrs  → {...}

The daemon opens the store read-write and saves after every update cycle.
The status command opens it read-only, which fails while the daemon holds
the lock for longer than one second.
*/
package storage
