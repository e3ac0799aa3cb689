// Package dbftdriver runs a [dbftengine.Engine] against real collaborators.
//
// A [Driver] owns one engine in a single kernel goroutine.
// The kernel selects over envelopes from the transport,
// round timer fires, mempool answers, ledger acknowledgements,
// and status requests; it feeds each into the engine
// and carries out the actions the engine emits.
// Mempool and ledger calls run in short-lived goroutines
// whose results come back to the kernel as events,
// so the kernel never blocks on them.
//
// Messages for a later height, or a later view of the current height,
// are held in a bounded per-validator backlog
// and replayed when the engine reaches their round.
//
// A node that times out repeatedly in one view asks its peers for their state
// with a recovery request, and merges any response through [dbftengine.Engine.Recover].
//
// When a [dbftstore.SnapshotStore] is configured,
// the engine's snapshot is saved after every change and before any
// resulting vote is broadcast, and restored at startup.
package dbftdriver
