package dbftengine

import (
	"context"
	"fmt"
	"math"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// HandleTimeout is injected by the driver when the round at height and view
// has run too long.
//
// A timeout for a stale round is ignored.
// A validator that already committed rebroadcasts its Commit,
// since it may not abandon the proposal;
// one that already requested a view change rebroadcasts that request;
// otherwise it requests a view change with reason Timeout.
func (e *Engine) HandleTimeout(ctx context.Context, height uint64, view dbftconsensus.ViewNumber) error {
	if height != e.state.Height() || view != e.state.View() {
		return nil
	}
	if !e.IsValidator() || e.pending != nil {
		return nil
	}

	if sm, ok := e.state.Record(dbftconsensus.MessageKindCommit, e.self); ok {
		e.log.Debug("Round timed out after commit; rebroadcasting commit", "h", height, "v", view)
		e.emit(BroadcastAction{Message: sm})
		return nil
	}

	if sm, ok := e.state.Record(dbftconsensus.MessageKindChangeView, e.self); ok {
		e.emit(BroadcastAction{Message: sm})
		return nil
	}

	e.log.Info("Round timed out; requesting view change", "h", height, "v", view)
	return e.requestChangeView(ctx, dbftconsensus.ChangeViewReasonTimeout)
}

// RequestChangeView asks the other validators to move past the current view,
// for example because the proposal referenced transactions
// this node does not have.
//
// It does nothing for an observer, for a validator that already committed,
// or for one that already requested a view change in the current view.
func (e *Engine) RequestChangeView(ctx context.Context, reason dbftconsensus.ChangeViewReason) error {
	if !reason.Valid() {
		return fmt.Errorf("invalid change view reason %d", reason)
	}
	if !e.IsValidator() || e.pending != nil || e.sentCommit() {
		return nil
	}
	if e.state.HasRecord(dbftconsensus.MessageKindChangeView, e.self) {
		return nil
	}
	return e.requestChangeView(ctx, reason)
}

func (e *Engine) requestChangeView(ctx context.Context, reason dbftconsensus.ChangeViewReason) error {
	target, ok := e.state.ChangeViewTarget()
	if !ok {
		if e.state.View() == math.MaxUint8 {
			return fmt.Errorf("cannot change view past %d at height %d", e.state.View(), e.state.Height())
		}
		target = e.state.View() + 1
	}

	if err := e.send(ctx, dbftconsensus.ChangeView{
		NewView:     target,
		Reason:      reason,
		TimestampMS: e.nowMS(),
	}); err != nil {
		return err
	}
	return e.advance(ctx)
}

// applyViewChange moves to target and restarts the round,
// keeping the quorum of ChangeView messages as proof for recovering peers.
func (e *Engine) applyViewChange(target dbftconsensus.ViewNumber) {
	from := e.state.View()
	e.viewChangeProofs = append(e.viewChangeProofs, e.state.Records(dbftconsensus.MessageKindChangeView)...)

	e.state.ApplyViewChange(target)
	e.requestedTxs = false

	e.log.Info(
		"Changed view",
		"h", e.state.Height(), "from", from, "to", target, "primary", e.state.Primary().ID,
	)

	e.Start()
}
