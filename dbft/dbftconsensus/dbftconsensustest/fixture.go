package dbftconsensustest

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/r3e-network/neodbft/dbft/dbftcodec"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dcrypto"
	"github.com/r3e-network/neodbft/dcrypto/dblsminsig"
	"github.com/r3e-network/neodbft/dcrypto/dblsminsig/dblsminsigtest"
)

// Fixture is a set of validators with their signers,
// and helpers for producing correctly signed consensus messages.
//
// Fields may be overridden before use.
type Fixture struct {
	PrivVals PrivVals

	Vals dbftconsensus.ValidatorSet

	SignatureScheme dbftconsensus.SignatureScheme

	Registry dcrypto.Registry

	// Version written into proposals built by [Fixture.PrepareRequest].
	Version uint32
}

// NewEd25519Fixture returns an initialized Fixture
// with the given number of deterministic ed25519 validators
// and the wire [dbftcodec.SignatureScheme].
func NewEd25519Fixture(numVals int) *Fixture {
	privVals := DeterministicValidatorsEd25519(numVals)

	vs, err := dbftconsensus.NewValidatorSet(privVals.Vals())
	if err != nil {
		panic(fmt.Errorf("failed to build validator set: %w", err))
	}

	var reg dcrypto.Registry
	dcrypto.RegisterEd25519(&reg)

	return &Fixture{
		PrivVals: privVals,
		Vals:     vs,

		SignatureScheme: dbftcodec.SignatureScheme{},

		Registry: reg,
	}
}

// NewBLSMinSigFixture is like [NewEd25519Fixture],
// but the validators hold deterministic BLS minimized-signature keys.
func NewBLSMinSigFixture(numVals int) *Fixture {
	signers := dblsminsigtest.DeterministicSigners(numVals)
	privVals := make(PrivVals, numVals)
	for i, s := range signers {
		privVals[i] = PrivVal{
			Val: dbftconsensus.Validator{
				ID:     dbftconsensus.ValidatorID(i),
				PubKey: s.PubKey(),
			},
			Signer: s,
		}
	}

	vs, err := dbftconsensus.NewValidatorSet(privVals.Vals())
	if err != nil {
		panic(fmt.Errorf("failed to build validator set: %w", err))
	}

	var reg dcrypto.Registry
	dblsminsig.Register(&reg)

	return &Fixture{
		PrivVals: privVals,
		Vals:     vs,

		SignatureScheme: dbftcodec.SignatureScheme{},

		Registry: reg,
	}
}

// Signer returns the signer for the validator with the given ID.
func (f *Fixture) Signer(id dbftconsensus.ValidatorID) dcrypto.Signer {
	return f.PrivVals[id].Signer
}

// Sign returns m signed by the validator with the given ID.
// It panics if signing fails.
func (f *Fixture) Sign(
	ctx context.Context,
	id dbftconsensus.ValidatorID,
	height uint64,
	view dbftconsensus.ViewNumber,
	m dbftconsensus.ConsensusMessage,
) dbftconsensus.SignedMessage {
	sig, err := f.Signer(id).Sign(ctx, f.SignatureScheme.SignBytes(height, view, m))
	if err != nil {
		panic(fmt.Errorf("failed to sign %s: %w", m.Kind(), err))
	}

	return dbftconsensus.SignedMessage{
		Validator: id,
		Height:    height,
		View:      view,
		Message:   m,
		Signature: sig,
	}
}

// PrepareRequest returns a valid proposal for the given height and view:
// its ProposalHash is the hash of the header a backup would rebuild from it.
//
// The timestamp and nonce are derived from the height and view,
// so repeated calls produce identical proposals.
func (f *Fixture) PrepareRequest(
	height uint64,
	view dbftconsensus.ViewNumber,
	prevHash dbftconsensus.Hash,
	txHashes []dbftconsensus.Hash,
) dbftconsensus.PrepareRequest {
	pr := dbftconsensus.PrepareRequest{
		Version:     f.Version,
		PrevHash:    prevHash,
		TimestampMS: 1_700_000_000_000 + height*15_000 + uint64(view)*1_000,
		Nonce:       height<<8 | uint64(view),
		Height:      height,
		TxHashes:    txHashes,
	}
	pr.ProposalHash = pr.Header(f.Vals, view).Hash()
	return pr
}

// SignedPrepareRequest is [Fixture.PrepareRequest] signed by the round's primary.
func (f *Fixture) SignedPrepareRequest(
	ctx context.Context,
	height uint64,
	view dbftconsensus.ViewNumber,
	prevHash dbftconsensus.Hash,
	txHashes []dbftconsensus.Hash,
) dbftconsensus.SignedMessage {
	primary := f.Vals.PrimaryFor(height, view)
	return f.Sign(ctx, primary.ID, height, view, f.PrepareRequest(height, view, prevHash, txHashes))
}

// FinalizedBlock returns the block that [Fixture.PrepareRequest] proposes,
// witnessed by Commit signatures from the first quorum of validators.
func (f *Fixture) FinalizedBlock(
	ctx context.Context,
	height uint64,
	view dbftconsensus.ViewNumber,
	prevHash dbftconsensus.Hash,
	txHashes []dbftconsensus.Hash,
) dbftconsensus.Block {
	pr := f.PrepareRequest(height, view, prevHash, txHashes)
	commit := dbftconsensus.Commit{ProposalHash: pr.ProposalHash}

	witnesses := make([]dbftconsensus.Witness, f.Vals.Quorum())
	for i := range witnesses {
		id := f.Vals.At(i).ID
		witnesses[i] = dbftconsensus.Witness{
			Validator: id,
			Signature: f.Sign(ctx, id, height, view, commit).Signature,
		}
	}

	return dbftconsensus.Block{
		Header:    pr.Header(f.Vals, view),
		TxHashes:  txHashes,
		Witnesses: witnesses,
	}
}

// BlockChain returns n consecutive finalized blocks starting at height,
// each linked to the previous one, with seeded transactions.
func (f *Fixture) BlockChain(ctx context.Context, height uint64, prevHash dbftconsensus.Hash, n int) []dbftconsensus.Block {
	out := make([]dbftconsensus.Block, n)
	for i := range out {
		h := height + uint64(i)
		out[i] = f.FinalizedBlock(ctx, h, 0, prevHash, TxHashes(h, i%3))
		prevHash = out[i].Hash()
	}
	return out
}

// TxHashes returns n deterministic, distinct transaction hashes
// derived from seed.
func TxHashes(seed uint64, n int) []dbftconsensus.Hash {
	if n <= 0 {
		return nil
	}
	out := make([]dbftconsensus.Hash, n)
	for i := range out {
		binary.LittleEndian.PutUint64(out[i][:8], seed)
		binary.LittleEndian.PutUint64(out[i][8:16], uint64(i))
		out[i][31] = 0xa5
	}
	return out
}
