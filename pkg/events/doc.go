/*
Package events streams role lifecycle events.

Roles publish through the Publisher interface: replica creation and release,
in-place upgrades, broken recovery decisions, plan updates and completion.
Broker fans events out to subscribers on a background loop:

	Role ──Publish──▶ [queue 256] ──run──▶ subscriber chans (64 each)

Publish never blocks a reconciliation cycle. An event that does not fit the
queue is dropped and counted, and a subscriber with a full buffer misses
events rather than stalling the others. Events get a uuid and a timestamp
when published without one.

Recorder keeps events in memory for tests and one-shot commands.
*/
package events
