/*
Package service publishes role workers into service discovery.

Each role owns one Switch. Every cycle the role hands it the worker views;
the switch publishes the workers that are assigned, not releasing, not asked
offline, online by plan and ready, and unpublishes the rest. The verdict per
worker is read back with ServiceInfos:

	published in every service   → SVT_AVAILABLE
	published in some services   → SVT_PART_AVAILABLE
	published nowhere            → SVT_UNAVAILABLE

The score of a worker is the number of services it is published in.

MemorySwitch keeps everything in memory. DNSSwitch writes services of type
"dns" into a shared dns.Registry, removing names that are no longer
configured, and treats any other type like MemorySwitch does.
*/
package service
