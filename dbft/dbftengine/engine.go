package dbftengine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftstate"
	"github.com/r3e-network/neodbft/dcrypto"
)

// Engine is the dBFT state machine for one node.
// See the package documentation for the overall flow.
type Engine struct {
	log *slog.Logger

	vals   dbftconsensus.ValidatorSet
	scheme dbftconsensus.SignatureScheme
	signer dcrypto.Signer

	// Local validator ID; only meaningful when signer is set.
	self dbftconsensus.ValidatorID

	version         uint32
	prevHash        dbftconsensus.Hash
	prevTimestampMS uint64

	maxTxs int
	clock  func() time.Time

	state *dbftstate.ConsensusState

	// Set once the primary has asked the mempool for transactions in the current view.
	requestedTxs bool

	// ChangeView messages that completed each view change at this height,
	// in view order. Handed to peers during recovery.
	viewChangeProofs []dbftconsensus.SignedMessage

	// Block handed to the ledger and not yet acknowledged.
	pending *dbftconsensus.Block

	actions []Action
}

// New returns an engine at cfg.Height and cfg.View.
// Call [Engine.Start] to begin the first round.
func New(log *slog.Logger, cfg Config) (*Engine, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		log: log,

		vals:   cfg.Validators,
		scheme: cfg.SignatureScheme,
		signer: cfg.Signer,

		version:         cfg.Version,
		prevHash:        cfg.PrevHash,
		prevTimestampMS: cfg.PrevTimestampMS,

		maxTxs: cfg.MaxTransactions,
		clock:  cfg.Clock,

		state: dbftstate.New(cfg.Height, cfg.View, cfg.Validators),
	}

	if cfg.Signer != nil {
		idx, ok := cfg.Validators.IndexOfPubKey(cfg.Signer.PubKey())
		if !ok {
			return nil, fmt.Errorf("signer public key is not in the validator set")
		}
		e.self = cfg.Validators.At(idx).ID
		e.log = e.log.With("val", e.self)
	}

	return e, nil
}

// IsValidator reports whether the engine votes.
func (e *Engine) IsValidator() bool {
	return e.signer != nil
}

func (e *Engine) isPrimary() bool {
	return e.IsValidator() && e.state.Primary().ID == e.self
}

// Height is the height currently being agreed upon.
func (e *Engine) Height() uint64 {
	return e.state.Height()
}

// View is the current view within [Engine.Height].
func (e *Engine) View() dbftconsensus.ViewNumber {
	return e.state.View()
}

// Validators is the engine's validator set.
func (e *Engine) Validators() dbftconsensus.ValidatorSet {
	return e.vals
}

// Start begins the current round.
// If this node is the primary, it asks the mempool for transactions.
// Start is idempotent within a view.
func (e *Engine) Start() {
	if !e.isPrimary() || e.requestedTxs || e.pending != nil {
		return
	}
	if _, ok := e.state.PrepareRequest(); ok {
		return
	}

	e.requestedTxs = true
	e.emit(RequestTransactionsAction{
		Height:   e.state.Height(),
		View:     e.state.View(),
		MaxCount: e.maxTxs,
	})
	e.log.Debug("Requested transactions for proposal", "h", e.state.Height(), "v", e.state.View())
}

// Deliver is the sole entry point for inbound consensus messages.
//
// The signature is verified, then the message is validated against
// the current state and recorded.
// A rejected message yields one of the typed errors from [dbftconsensus]
// and leaves the engine unchanged.
// An accepted message may cause the engine to vote, finalize a block,
// or change view; the resulting actions are available from [Engine.TakeActions].
func (e *Engine) Deliver(ctx context.Context, sm dbftconsensus.SignedMessage) error {
	if err := e.accept(sm); err != nil {
		return err
	}
	return e.advance(ctx)
}

// accept verifies and records sm, without evaluating any transitions.
func (e *Engine) accept(sm dbftconsensus.SignedMessage) error {
	if err := dbftconsensus.VerifySignature(e.vals, e.scheme, sm); err != nil {
		return err
	}

	if err := e.state.Validate(sm); err != nil {
		return err
	}

	if pr, ok := sm.Message.(dbftconsensus.PrepareRequest); ok {
		if err := e.checkProposal(pr); err != nil {
			return err
		}
	}

	if err := e.state.Add(sm); err != nil {
		// Validate already passed, so this would be an inconsistency in the state package.
		panic(fmt.Errorf("BUG: validated message rejected on add: %w", err))
	}

	e.log.Debug(
		"Accepted message",
		"h", sm.Height, "v", sm.View, "kind", sm.Kind(), "from", sm.Validator,
	)
	return nil
}

// advance fires every transition made possible by the current state,
// until none remains.
func (e *Engine) advance(ctx context.Context) error {
	for {
		fired, err := e.step(ctx)
		if err != nil || !fired {
			return err
		}
	}
}

func (e *Engine) step(ctx context.Context) (bool, error) {
	if e.pending != nil {
		// Finalized; nothing else happens until the ledger acknowledges.
		return false, nil
	}

	if e.shouldRespond() {
		pr, _ := e.state.PrepareRequest()
		return true, e.send(ctx, dbftconsensus.PrepareResponse{ProposalHash: pr.ProposalHash})
	}

	if h, ok := e.shouldCommit(); ok {
		return true, e.send(ctx, dbftconsensus.Commit{ProposalHash: h})
	}

	if blk, ok := e.finalizedBlock(); ok {
		e.pending = &blk
		e.emit(CommitBlockAction{Block: blk})
		e.log.Info(
			"Finalized block",
			"h", blk.Height(), "v", e.state.View(), "hash", blk.Hash(), "txs", len(blk.TxHashes),
		)
		return true, nil
	}

	if target, ok := e.state.ChangeViewQuorum(); ok {
		e.applyViewChange(target)
		return true, nil
	}

	return false, nil
}

// shouldRespond reports whether this backup has yet to answer the bound proposal.
func (e *Engine) shouldRespond() bool {
	if !e.IsValidator() || e.isPrimary() {
		return false
	}
	if _, ok := e.state.PrepareRequest(); !ok {
		return false
	}
	return !e.state.HasRecord(dbftconsensus.MessageKindPrepareResponse, e.self)
}

// shouldCommit returns the proposal hash to commit to,
// once a quorum has prepared it and this validator has not yet committed.
func (e *Engine) shouldCommit() (dbftconsensus.Hash, bool) {
	if !e.IsValidator() || e.sentCommit() {
		return dbftconsensus.Hash{}, false
	}
	h, ok := e.state.Proposal()
	if !ok || e.state.PreparedCount(h) < e.vals.Quorum() {
		return dbftconsensus.Hash{}, false
	}
	return h, true
}

func (e *Engine) sentCommit() bool {
	return e.IsValidator() && e.state.HasRecord(dbftconsensus.MessageKindCommit, e.self)
}

// send signs m for the current height and view,
// delivers it locally, and broadcasts it.
func (e *Engine) send(ctx context.Context, m dbftconsensus.ConsensusMessage) error {
	if !e.IsValidator() {
		panic(fmt.Errorf("BUG: observer attempted to send %s", m.Kind()))
	}

	h, v := e.state.Height(), e.state.View()
	sig, err := e.signer.Sign(ctx, e.scheme.SignBytes(h, v, m))
	if err != nil {
		return fmt.Errorf("failed to sign %s: %w", m.Kind(), err)
	}

	sm := dbftconsensus.SignedMessage{
		Validator: e.self,
		Height:    h,
		View:      v,
		Message:   m,
		Signature: sig,
	}
	if err := e.accept(sm); err != nil {
		return fmt.Errorf("local %s rejected: %w", m.Kind(), err)
	}

	e.emit(BroadcastAction{Message: sm})
	return nil
}

func (e *Engine) emit(a Action) {
	e.actions = append(e.actions, a)
}

// TakeActions returns the actions emitted since the last call
// and clears the engine's queue.
func (e *Engine) TakeActions() []Action {
	out := e.actions
	e.actions = nil
	return out
}

func (e *Engine) nowMS() uint64 {
	return uint64(e.clock().UnixMilli())
}
