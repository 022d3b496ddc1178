/*
Package scheduler decides how many replicas a role runs at each version.

The Adjuster is the reconciliation algorithm of a role. Every schedule cycle
it compares the replicas a role owns with its global plan and adds, removes
or re-versions replicas so the counts per version converge on the target.
It never talks to the scheduler adapter; it only mutates replica nodes and
leaves the resulting slot requests to the executor.

# Algorithm

	┌───────────────────────────────────────────────────────────┐
	│ 1. targets   latest = ceil(count × ratio / 100)           │
	│              old    = count − latest                      │
	│              (one live version: latest = count)           │
	│ 2. counts    Selector over non-releasing replicas         │
	│ 3. pool      lowest ranked redundant latest + old         │
	│ 4. hold      keep healthy pool replicas for the floor     │
	│ 5. latest    repin pool replicas, then create new ones    │
	│ 6. old       same, on the first old version               │
	│ 7. swap      unassigned replicas give way to assigned     │
	│              pool replicas                                │
	│ 8. release   whatever is left in the pool                 │
	│ 9. drop      replicas whose workers all gave slots back   │
	└───────────────────────────────────────────────────────────┘

Examples of the split:

	count=10 ratio=80  → latest 8, old 2
	count=3  ratio=34  → latest 2, old 1
	count=4  ratio=50  → latest 2, old 2

# Bounds

New replicas are capped by MaxCount minus every replica the role still owns,
releasing ones included, since those keep their slots until the scheduler
takes them back. The health floor is min(MinHealthCount, Count) minus the
sum of the holding counts. Only available replicas are held for it, the
highest CompareForHold rank first.

Redundant replicas are picked in Score order with ties broken by id, so
the same observed state always produces the same decisions.

# Unassigned replacement

When the pool still holds replicas with a slot and some surviving replicas
have none, the surviving ones are taken in id order and each inherits the
next pool replica, also in id order. The donor is repinned to the waiting
replica's version and the waiting replica is released instead.
*/
package scheduler
