/*
Package log provides structured logging for rolekeeper using zerolog.

The package owns a global zerolog Logger configured once at startup by
Init, and a small set of helpers that derive child loggers carrying the
fields every component logs with.

# Usage

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	logger := log.WithComponent("reconciler")
	logger.Info().Int("roles", n).Msg("Reconciler started")

# Per-role loggers

Roles never log through the global logger directly. A role receives its own
logger through role.Config, and hands derived loggers down the tree:

	roleLog := log.WithRole(groupID, roleID, roleGUID)
	replicaLog := log.WithReplica(roleLog, replicaID)
	workerLog := log.WithWorker(replicaLog, workerID)

Every line emitted by a worker node therefore carries group, role,
role_guid, replica and worker fields, which makes a single replica's
recovery history greppable:

	{"level":"info","component":"role","role":"qrs","replica":"qrs-00000003",
	 "worker":"qrs-00000003-w2","from":"ASSIGNED","to":"RELEASING",
	 "message":"Worker alloc status changed"}

# Output formats

JSONOutput selects line-delimited JSON, suitable for log shippers. The
default is zerolog's ConsoleWriter with RFC3339 timestamps for local runs.

# Levels

	debug  step cursor changes, adapter call skips, digest hits
	info   replica creation and release, recovery, role completion
	warn   quota denial, collaborators not working, missing versions
	error  adapter failures, persistence failures

Levels are set globally through zerolog.SetGlobalLevel, so child loggers
created before Init still honour the configured level.
*/
package log
