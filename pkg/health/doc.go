/*
Package health judges whether the workers of a role are alive and ready to
serve.

A role asks its Manager for a Checker keyed by the role name. Each cycle the
role feeds the checker the current worker views with Update and reads the
verdicts back with HealthInfos. A worker missing from the verdicts is treated
as unknown by the worker state machine.

# Checkers

	┌──────────────┐   Update(workers)    ┌───────────────────┐
	│     Role     │ ───────────────────▶ │      Checker      │
	│              │ ◀─────────────────── │                   │
	└──────────────┘   HealthInfos()      └─────────┬─────────┘
	                                                │
	                              ┌─────────────────┴───────────────┐
	                              ▼                                 ▼
	                     ┌─────────────────┐              ┌──────────────────┐
	                     │  MemoryChecker  │              │   ProbeChecker   │
	                     │ slot status     │              │ HTTP / TCP probe │
	                     └─────────────────┘              └──────────────────┘

MemoryChecker folds the slot status reported by the resource scheduler:

	slot running          → ALIVE / READY
	process restarting    → ALIVE / NOT_READY
	process or pkg failed → DEAD  / NOT_READY
	slave dead            → LOST  / UNKNOWN
	anything else         → UNKNOWN

ProbeChecker probes every worker whose process is running on
<slave host>:<port>, in the background, at most 16 probes at a time:

	no probe yet                   → UNKNOWN
	last probe passed              → ALIVE / READY
	never passed                   → ALIVE / NOT_READY
	failures >= retries            → DEAD  / NOT_READY
	fewer failures than retries    → ALIVE / READY

A worker that never passed is still starting, so it is never reported dead;
the not-ready timeout of the worker handles a process that never comes up.
Probe history is kept across Update calls while the worker keeps its address
and version.

# Managers

MemoryManager hands out MemoryCheckers. ProbeManager hands out ProbeCheckers
for "http" and "tcp" configs and falls back to a MemoryChecker otherwise. A
changed config stops the old checker and starts a new one.

# Usage

	mgr := health.NewProbeManager(logger)
	defer mgr.Stop()

	checker := mgr.GetHealthChecker("qrs", types.HealthCheckerConfig{
		Type: types.HealthCheckHTTP,
		Port: 8080,
		Path: "/status",
	})
	checker.Update(views)
	infos := checker.HealthInfos()
*/
package health
