package dbftengine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/r3e-network/neodbft/dbft/dbftcodec"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dcrypto"
)

// Config is the construction-time input to [New].
// The engine never modifies it.
type Config struct {
	Validators dbftconsensus.ValidatorSet

	// Initial height and view.
	Height uint64
	View   dbftconsensus.ViewNumber

	// Hash and timestamp of the block at Height-1.
	// Proposals must build on PrevHash
	// and carry a timestamp later than PrevTimestampMS.
	PrevHash        dbftconsensus.Hash
	PrevTimestampMS uint64

	// Block version written into and required of proposals.
	Version uint32

	// Signer for the local validator.
	// A nil Signer runs the engine as an observer,
	// which follows and finalizes rounds but never votes.
	Signer dcrypto.Signer

	// Defaults to dbftcodec.SignatureScheme.
	SignatureScheme dbftconsensus.SignatureScheme

	// Upper bound on transactions per proposal.
	// Defaults to, and may not exceed, dbftcodec.MaxTransactions.
	MaxTransactions int

	// Defaults to time.Now.
	Clock func() time.Time
}

func (c *Config) setDefaults() error {
	if c.Validators.Len() == 0 {
		return errors.New("validator set is required")
	}

	if c.Height > math.MaxUint32 {
		return fmt.Errorf("height %d exceeds the maximum block index", c.Height)
	}

	if c.SignatureScheme == nil {
		c.SignatureScheme = dbftcodec.SignatureScheme{}
	}

	switch {
	case c.MaxTransactions == 0:
		c.MaxTransactions = dbftcodec.MaxTransactions
	case c.MaxTransactions < 0 || c.MaxTransactions > dbftcodec.MaxTransactions:
		return fmt.Errorf(
			"max transactions must be in [1, %d], got %d",
			dbftcodec.MaxTransactions, c.MaxTransactions,
		)
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	return nil
}
