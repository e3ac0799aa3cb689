// Package dbftstate holds the per-height consensus bookkeeping:
// the messages recorded for the current view,
// the validators still expected to contribute each kind of message,
// the proposal bound to the round,
// and change view statistics that survive view changes.
//
// A [ConsensusState] is owned by exactly one goroutine.
// It has no internal locking.
//
// The validation pipeline ([ConsensusState.Validate]) decides whether
// a message may be recorded. It never mutates state,
// so a rejected message leaves the state exactly as it was.
package dbftstate
