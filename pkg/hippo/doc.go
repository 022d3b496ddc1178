/*
Package hippo defines the scheduler adapter a role uses to obtain slots and
launch processes, plus an in-memory Simulator of that scheduler.

The real scheduler wire protocol lives outside this repository. Anything
that implements Adapter can drive roles:

	AllocateSlots   wanted count per resource tag, plus released slots
	LaunchSlots     launch plan per slot (current and final)
	GetSlotsByTags  slot inventory of the given tags
	GetAllTags      every tag with a request or a slot
	ReleaseTag      drop a tag with all its slots
	IsWorking       connection health
	AppChecksum     changes when the scheduler lost its state

# Simulator

The Simulator places slots round robin on a fixed list of slaves and runs
everything synchronously, which makes role cycles reproducible in tests and
in `rolekeeper run`. Faults are injected directly:

	sim.KillSlave("10.0.0.1:7000")        every slot on it turns SS_DEAD
	sim.FailProcess(id)                   PS_FAILED
	sim.Reclaim(id)                       reclaiming flag set
	sim.SetPreference(id, PREF_RELEASE)   scheduler wants the slot back
	sim.RemoveSlot(id)                    slot vanishes without a release
	sim.Restart()                         new app checksum
	sim.SetWorking(false)                 every call fails with ErrNotWorking

Calls counts AllocateSlots, LaunchSlots and ReleaseTag so tests can assert
that a steady role sends nothing.
*/
package hippo
