/*
Package dns publishes the available workers of each role as A records.

The service switch of a role writes the endpoints of its services into a
Registry; the Server answers queries for names under the registry domain
from it and forwards everything else to the configured upstreams.

# Architecture

	┌──────────────┐  Set(name, endpoints)  ┌──────────────┐
	│  DNSSwitch   │ ─────────────────────▶ │   Registry   │
	│ (per role)   │                        └──────┬───────┘
	└──────────────┘                               │ Lookup
	                                               ▼
	                 query  ┌──────────┐    ┌──────────────┐
	      client ─────────▶ │  Server  │ ─▶ │   Resolver   │
	                        └────┬─────┘    └──────────────┘
	                             │ outside the domain
	                             ▼
	                         upstreams

# Names

Service names are relative to the domain, "<role>.<group>" unless the plan
names the service:

	qrs.search.rolekeeper.     10 IN A 10.0.1.10   every endpoint, shuffled
	qrs.search-2.rolekeeper.   10 IN A 10.0.1.11   second endpoint by node id

A name under the domain that is not registered gets NXDOMAIN. Names outside
the domain are forwarded to the upstreams in order; with no upstream the
query is refused.

# Usage

	registry := dns.NewRegistry("rolekeeper")
	server := dns.NewServer(registry, dns.Config{ListenAddr: "127.0.0.1:8053"}, logger)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	registry.Set("qrs.search", []dns.Endpoint{{NodeID: "qrs-00000001-w1", IP: net.ParseIP("10.0.1.10")}})
*/
package dns
