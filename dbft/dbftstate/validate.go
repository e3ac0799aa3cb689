package dbftstate

import (
	"fmt"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// Validate runs the stateful checks for sm against the current state,
// in order:
//
//  1. the height must match and the validator must be in the set;
//  2. the view must match (a ChangeView from another view is stale);
//  3. the validator must not already have a message of this kind;
//  4. a ChangeView must target a later view,
//     and the same view as every other ChangeView in the round;
//  5. a PrepareRequest must come from the round's primary;
//  6. a PrepareResponse or Commit must name the bound proposal, if one is bound.
//
// The first failing check determines the returned error,
// which is one of the typed errors in [dbftconsensus].
// Validate never modifies s.
func (s *ConsensusState) Validate(sm dbftconsensus.SignedMessage) error {
	if sm.Height != s.height {
		return dbftconsensus.InvalidHeightError{Expected: s.height, Received: sm.Height}
	}
	if _, ok := s.vals.Get(sm.Validator); !ok {
		return dbftconsensus.UnknownValidatorError{Validator: sm.Validator}
	}

	kind := sm.Kind()
	if sm.View != s.view {
		if kind == dbftconsensus.MessageKindChangeView {
			return dbftconsensus.StaleMessageError{
				Kind:        kind,
				CurrentView: s.view,
				MessageView: sm.View,
			}
		}
		return dbftconsensus.InvalidViewError{Expected: s.view, Received: sm.View}
	}

	if s.HasRecord(kind, sm.Validator) {
		return dbftconsensus.DuplicateMessageError{Kind: kind, Validator: sm.Validator}
	}

	switch m := sm.Message.(type) {
	case dbftconsensus.ChangeView:
		if m.NewView <= s.view {
			return dbftconsensus.StaleViewError{Current: s.view, Requested: m.NewView}
		}
		if target, ok := s.ChangeViewTarget(); ok && target != m.NewView {
			return dbftconsensus.InconsistentViewError{Expected: target, Received: m.NewView}
		}

	case dbftconsensus.PrepareRequest:
		if primary := s.Primary().ID; sm.Validator != primary {
			return dbftconsensus.InvalidPrimaryError{Expected: primary, Actual: sm.Validator}
		}

	case dbftconsensus.PrepareResponse:
		return s.checkProposal(m.ProposalHash)

	case dbftconsensus.Commit:
		return s.checkProposal(m.ProposalHash)

	default:
		panic(fmt.Errorf("BUG: unhandled consensus message type %T", m))
	}

	return nil
}

// checkProposal accepts any hash until a proposal is bound,
// so that votes arriving ahead of the PrepareRequest are held.
func (s *ConsensusState) checkProposal(h dbftconsensus.Hash) error {
	if s.hasProposal && h != s.proposal {
		return dbftconsensus.ProposalMismatchError{Expected: s.proposal, Actual: h}
	}
	return nil
}
