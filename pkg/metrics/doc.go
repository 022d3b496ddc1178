/*
Package metrics exposes rolekeeper's Prometheus collectors and the daemon's
health endpoints.

All collectors are package-level variables registered with the default
registry in init, so any package can record into them without plumbing:

	timer := metrics.NewTimer()
	err := r.runSchedule(ctx)
	timer.ObserveDurationVec(metrics.ReconciliationDuration, "schedule")
	metrics.ReconciliationCycles.WithLabelValues("schedule", metrics.Status(err)).Inc()

# Collectors

Role state:

	rolekeeper_roles_total                     gauge
	rolekeeper_role_replicas{role,state}       gauge   total|available|completed|releasing|recovering
	rolekeeper_role_completed{role}            gauge   1 once the role reached its target
	rolekeeper_replicas_created_total{role}    counter
	rolekeeper_replicas_released_total{role}   counter
	rolekeeper_broken_recover_total{role,result} counter admitted|denied

Scheduler adapter:

	rolekeeper_adapter_calls_total{call,status}  counter allocate|launch|release_tag
	rolekeeper_slots_released_total{role}         counter

Reconciler:

	rolekeeper_reconciliation_duration_seconds{phase} histogram schedule|update
	rolekeeper_reconciliation_cycles_total{phase,status} counter
	rolekeeper_snapshot_writes_total{status}           counter

Role gauges are filled by a Collector sampling a StatsSource (the
reconciler) on an interval; gauges of roles that disappear are deleted.

# Health endpoints

UpdateComponent records the health of a daemon component (store, adapter,
reconciler, dns). NewMux serves:

	/metrics  Prometheus exposition
	/health   200 while every registered component is healthy, else 503
	/ready    200 once every critical component is registered and healthy
*/
package metrics
