package dbftdriver

import (
	"errors"
	"time"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftengine"
	"github.com/r3e-network/neodbft/dbft/dbftmempool"
	"github.com/r3e-network/neodbft/dbft/dbftp2p"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
)

// Config is the construction-time input to [New].
type Config struct {
	// Engine configuration.
	// If BlockStore already holds blocks, the height, previous hash,
	// and previous timestamp are taken from its last block instead.
	Engine dbftengine.Config

	Connection dbftp2p.Connection
	Mempool    dbftmempool.Mempool
	BlockStore dbftstore.BlockStore

	// Optional. When nil, consensus state does not survive a restart.
	SnapshotStore dbftstore.SnapshotStore

	// Defaults to DefaultTimeoutStrategy.
	TimeoutStrategy TimeoutStrategy

	// Number of timeouts within one view after which
	// the driver requests recovery from its peers. Defaults to 2.
	RecoveryAfterTimeouts int

	// Delay between starting a round as primary and asking the mempool
	// for transactions, which paces block production. Defaults to zero.
	ProposalDelay time.Duration

	// Delay before retrying a failed ledger commit. Defaults to 100ms.
	LedgerRetryDelay time.Duration

	// Maximum number of future messages held per validator. Defaults to 64.
	BacklogPerValidator int

	// Optional. Each block is sent after the ledger acknowledges it.
	// The kernel blocks on the send, so the channel must be drained.
	FinalizedBlocks chan<- dbftconsensus.Block
}

func (c *Config) setDefaults() error {
	if c.Connection == nil {
		return errors.New("connection is required")
	}
	if c.Mempool == nil {
		return errors.New("mempool is required")
	}
	if c.BlockStore == nil {
		return errors.New("block store is required")
	}

	if c.TimeoutStrategy == nil {
		c.TimeoutStrategy = DefaultTimeoutStrategy
	}
	if c.RecoveryAfterTimeouts <= 0 {
		c.RecoveryAfterTimeouts = 2
	}
	if c.LedgerRetryDelay <= 0 {
		c.LedgerRetryDelay = 100 * time.Millisecond
	}
	if c.BacklogPerValidator <= 0 {
		c.BacklogPerValidator = 64
	}
	return nil
}
