/*
Package config loads the rolekeeper daemon configuration and plan files.

The daemon is configured from the environment, every variable prefixed with
ROLEKEEPER_:

	ROLEKEEPER_LOG_LEVEL           debug, info, warn, error (info)
	ROLEKEEPER_LOG_JSON            JSON log output (false)
	ROLEKEEPER_DATA_DIR            bbolt store directory (./rolekeeper-data)
	ROLEKEEPER_SCHEDULE_INTERVAL   schedule loop period (1s)
	ROLEKEEPER_UPDATE_INTERVAL     update loop period (3s)
	ROLEKEEPER_CYCLE_TIMEOUT       deadline of one role cycle (10s)
	ROLEKEEPER_WORKERS             roles driven at once (8)
	ROLEKEEPER_METRICS_ADDR        metrics and health endpoint (127.0.0.1:9090)
	ROLEKEEPER_DNS_ADDR            DNS listen address, DNS is off when empty
	ROLEKEEPER_DNS_DOMAIN          DNS zone (rolekeeper)
	ROLEKEEPER_DNS_UPSTREAM        forwarders for names outside the zone

Command line flags override the environment.

Plan files are YAML and list the desired state of each role:

	roles:
	  - group: search
	    role: qrs
	    version: v1
	    global:
	      count: 4
	      latestVersionRatio: 50
	      serviceConfigs:
	        - port: 8080
	    versioned:
	      resourcePlan:
	        resources:
	          - {name: cpu, amount: 200}
	      launchPlan:
	        processes:
	          - {name: qrs, cmd: /usr/bin/qrs}

A role without a guid gets a random one. A service config without a name is
published as <role>.<group>, without a type as "dns".
*/
package config
