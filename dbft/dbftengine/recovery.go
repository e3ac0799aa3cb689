package dbftengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftsnapshot"
	"github.com/r3e-network/neodbft/dbft/dbftstate"
)

// Recovery is what a node shares with a peer that fell behind within a height:
// an encoded snapshot of its consensus state, plus the ChangeView messages
// that moved the height past each earlier view.
type Recovery struct {
	Snapshot []byte

	ViewChanges []dbftconsensus.SignedMessage
}

// Snapshot returns the encoded consensus state, suitable for [Engine.Restore].
func (e *Engine) Snapshot() []byte {
	return dbftsnapshot.Encode(e.state.Snapshot())
}

// RecoveryData returns the local recovery information for the current height.
func (e *Engine) RecoveryData() Recovery {
	return Recovery{
		Snapshot:    e.Snapshot(),
		ViewChanges: append([]dbftconsensus.SignedMessage(nil), e.viewChangeProofs...),
	}
}

// Restore replaces the consensus state with a snapshot
// previously produced by [Engine.Snapshot] at the same height,
// for example after a process restart.
//
// Every recorded signature is verified and every record re-validated.
// On error the engine is unchanged.
func (e *Engine) Restore(ctx context.Context, b []byte) error {
	if e.pending != nil {
		return errors.New("cannot restore while a finalized block is pending")
	}

	snap, err := dbftsnapshot.Decode(b)
	if err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Height != e.state.Height() {
		return dbftconsensus.InvalidHeightError{Expected: e.state.Height(), Received: snap.Height}
	}

	for _, recs := range snap.Records {
		for _, sm := range recs {
			if err := dbftconsensus.VerifySignature(e.vals, e.scheme, sm); err != nil {
				return fmt.Errorf("snapshot record: %w", err)
			}
		}
	}

	s, err := dbftstate.FromSnapshot(e.vals, snap)
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}

	e.state = s
	e.requestedTxs = false
	e.viewChangeProofs = nil

	e.log.Info("Restored consensus state", "h", s.Height(), "v", s.View())

	e.Start()
	return e.advance(ctx)
}

// Recover merges a peer's [Recovery] into the local state.
//
// The peer's ChangeView proofs are delivered first,
// which can carry this node forward to the peer's view;
// then, if the views match, every record in the peer's snapshot is delivered.
// Messages are subject to the same checks as [Engine.Deliver]
// and rejected ones are skipped.
// Recover returns the number of messages accepted.
func (e *Engine) Recover(ctx context.Context, rec Recovery) (int, error) {
	snap, err := dbftsnapshot.Decode(rec.Snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to decode recovery snapshot: %w", err)
	}
	if snap.Height != e.state.Height() {
		return 0, dbftconsensus.InvalidHeightError{Expected: e.state.Height(), Received: snap.Height}
	}

	accepted := 0
	try := func(sm dbftconsensus.SignedMessage) error {
		if err := e.accept(sm); err != nil {
			e.log.Debug(
				"Skipping recovered message",
				"kind", sm.Kind(), "from", sm.Validator, "v", sm.View, "err", err,
			)
			return nil
		}
		accepted++
		return e.advance(ctx)
	}

	for _, sm := range rec.ViewChanges {
		if sm.View != e.state.View() {
			continue
		}
		if err := try(sm); err != nil {
			return accepted, err
		}
	}

	if snap.View != e.state.View() {
		return accepted, nil
	}

	for _, k := range dbftconsensus.MessageKinds() {
		for _, sm := range snap.Records[k] {
			if err := try(sm); err != nil {
				return accepted, err
			}
		}
	}

	if accepted > 0 {
		e.log.Info("Recovered messages from peer", "h", e.state.Height(), "v", e.state.View(), "n", accepted)
	}
	return accepted, nil
}
