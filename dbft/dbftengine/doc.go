// Package dbftengine contains the dBFT state machine for a single node.
//
// An [Engine] owns one [dbftstate.ConsensusState] at a time.
// It never performs I/O: every interaction with the outside world
// is expressed as an [Action] that the caller drains with [Engine.TakeActions]
// and fulfils, feeding results back through
// [Engine.HandleTransactions] and [Engine.HandleBlockCommitted].
// Messages the engine signs are delivered to itself before being broadcast,
// so local votes are counted exactly like remote ones.
//
// An Engine is not safe for concurrent use.
// The dbftdriver package runs an Engine in a single goroutine.
//
// The round progresses through these derived phases:
//
//   - AwaitingProposal: no PrepareRequest is bound to the view.
//     The primary requests transactions and proposes a block.
//   - Prepared: a PrepareRequest is bound.
//     Backups validate the proposed header and respond.
//   - Committed: a quorum prepared the proposal and this node sent its Commit.
//   - Finalized: a quorum committed and the block was handed to the ledger.
//
// Independently of those phases, a quorum of ChangeView messages
// agreeing on one target view moves the engine to that view,
// discarding the progress of the abandoned view.
package dbftengine
