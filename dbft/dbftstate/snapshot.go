package dbftstate

import (
	"fmt"
	"maps"
	"slices"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// Snapshot is a complete copy of a [ConsensusState],
// suitable for persistence or for answering a peer's recovery request.
//
// Empty collections are nil.
type Snapshot struct {
	Height uint64
	View   dbftconsensus.ViewNumber

	Proposal    dbftconsensus.Hash
	HasProposal bool

	Records  map[dbftconsensus.MessageKind][]dbftconsensus.SignedMessage
	Expected map[dbftconsensus.MessageKind][]dbftconsensus.ValidatorID

	ChangeViewReasons      map[dbftconsensus.ValidatorID]dbftconsensus.ChangeViewReason
	ChangeViewReasonCounts map[dbftconsensus.ChangeViewReason]uint32
	ChangeViewTotal        uint32
}

// Snapshot returns a deep copy of s.
func (s *ConsensusState) Snapshot() Snapshot {
	snap := Snapshot{
		Height:          s.height,
		View:            s.view,
		Proposal:        s.proposal,
		HasProposal:     s.hasProposal,
		ChangeViewTotal: s.cvTotal,
	}

	for k, recs := range s.records {
		if len(recs) == 0 {
			continue
		}
		if snap.Records == nil {
			snap.Records = make(map[dbftconsensus.MessageKind][]dbftconsensus.SignedMessage)
		}
		snap.Records[k] = slices.Clone(recs)
	}

	for k, ids := range s.expected {
		if snap.Expected == nil {
			snap.Expected = make(map[dbftconsensus.MessageKind][]dbftconsensus.ValidatorID)
		}
		snap.Expected[k] = slices.Clone(ids)
	}

	if len(s.cvReasons) > 0 {
		snap.ChangeViewReasons = maps.Clone(s.cvReasons)
	}
	if len(s.cvReasonCounts) > 0 {
		snap.ChangeViewReasonCounts = maps.Clone(s.cvReasonCounts)
	}

	return snap
}

// FromSnapshot reconstructs a state from snap over the validator set vals.
//
// Every record is re-validated as though it were delivered again,
// in arrival order within a kind.
// The PrepareRequest is replayed last, so votes recorded before
// the proposal was bound are handled as they were live.
// Expected participants and change view statistics must name
// validators in vals.
// Signatures are not checked here.
func FromSnapshot(vals dbftconsensus.ValidatorSet, snap Snapshot) (*ConsensusState, error) {
	s := New(snap.Height, snap.View, vals)

	kinds := slices.DeleteFunc(dbftconsensus.MessageKinds(), func(k dbftconsensus.MessageKind) bool {
		return k == dbftconsensus.MessageKindPrepareRequest
	})
	kinds = append(kinds, dbftconsensus.MessageKindPrepareRequest)

	for _, kind := range kinds {
		for i, sm := range snap.Records[kind] {
			if sm.Kind() != kind {
				return nil, fmt.Errorf("record %d under kind %s has kind %s", i, kind, sm.Kind())
			}
			if err := s.Validate(sm); err != nil {
				return nil, fmt.Errorf("invalid %s record %d: %w", kind, i, err)
			}
			s.add(sm)
		}
	}

	for k := range snap.Records {
		if !k.Valid() {
			return nil, fmt.Errorf("records for unknown kind %s", k)
		}
	}

	if snap.HasProposal != s.hasProposal || snap.Proposal != s.proposal {
		return nil, fmt.Errorf(
			"snapshot proposal (%t, %s) does not match recorded prepare request (%t, %s)",
			snap.HasProposal, snap.Proposal, s.hasProposal, s.proposal,
		)
	}

	clear(s.expected)
	for k, ids := range snap.Expected {
		if !k.Valid() {
			return nil, fmt.Errorf("expected participants for unknown kind %s", k)
		}
		for _, id := range ids {
			if _, ok := vals.Get(id); !ok {
				return nil, fmt.Errorf("expected %s participant: %w", k, dbftconsensus.UnknownValidatorError{Validator: id})
			}
		}
		s.expected[k] = slices.Clone(ids)
	}

	for id, r := range snap.ChangeViewReasons {
		if _, ok := vals.Get(id); !ok {
			return nil, fmt.Errorf("change view reason: %w", dbftconsensus.UnknownValidatorError{Validator: id})
		}
		if !r.Valid() {
			return nil, fmt.Errorf("invalid change view reason %s for validator %d", r, id)
		}
		s.cvReasons[id] = r
	}
	for r, n := range snap.ChangeViewReasonCounts {
		if !r.Valid() {
			return nil, fmt.Errorf("count for invalid change view reason %s", r)
		}
		s.cvReasonCounts[r] = n
	}
	s.cvTotal = snap.ChangeViewTotal

	return s, nil
}
