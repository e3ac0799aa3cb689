package dbftengine

import (
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// Action is an outbound command emitted by the [Engine].
type Action interface {
	isAction()
}

// BroadcastAction asks the transport to send Message to all peers.
type BroadcastAction struct {
	Message dbftconsensus.SignedMessage
}

// RequestTransactionsAction asks the mempool for up to MaxCount
// transaction hashes for a proposal at Height and View.
// The answer is fed back with [Engine.HandleTransactions].
type RequestTransactionsAction struct {
	Height   uint64
	View     dbftconsensus.ViewNumber
	MaxCount int
}

// CommitBlockAction asks the ledger to persist a finalized block.
// The outcome is fed back with [Engine.HandleBlockCommitted].
type CommitBlockAction struct {
	Block dbftconsensus.Block
}

func (BroadcastAction) isAction()           {}
func (RequestTransactionsAction) isAction() {}
func (CommitBlockAction) isAction()         {}
