/*
Package api serves the live state of the reconciler over gRPC.

The role status service carries only well-known protobuf types: a role key
is a StringValue and a role status is a Struct holding the JSON form of
role.Status. The standard gRPC health service is registered next to it.

	┌──────────────┐  ListRoles / GetRole / StopRole   ┌──────────────┐
	│ rolekeeper   │ ────────────────────────────────▶ │    Server    │
	│ status       │ ◀──────────────────────────────── │              │
	└──────────────┘          structpb.Struct          └──────┬───────┘
	                                                          │ Roles, Get,
	                                                          ▼ StopRole
	                                                   ┌──────────────┐
	                                                   │  Reconciler  │
	                                                   └──────────────┘

The daemon serves it read-only unless started with --api-writable; the
read-only interceptor refuses StopRole with codes.PermissionDenied.
*/
package api
