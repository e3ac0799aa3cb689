package dbftstate

import (
	"fmt"
	"slices"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// ConsensusState is the mutable record of one height.
type ConsensusState struct {
	height uint64
	view   dbftconsensus.ViewNumber
	vals   dbftconsensus.ValidatorSet

	proposal    dbftconsensus.Hash
	hasProposal bool

	// Messages accepted in the current view, in arrival order per kind.
	records map[dbftconsensus.MessageKind][]dbftconsensus.SignedMessage

	// Validators still expected to send each kind.
	// A missing key means nothing is expected.
	expected map[dbftconsensus.MessageKind][]dbftconsensus.ValidatorID

	// Change view bookkeeping persists across view changes within the height.
	cvReasons      map[dbftconsensus.ValidatorID]dbftconsensus.ChangeViewReason
	cvReasonCounts map[dbftconsensus.ChangeViewReason]uint32
	cvTotal        uint32
}

// New returns an empty state for the given height and view,
// expecting a PrepareRequest from the round's primary.
func New(height uint64, view dbftconsensus.ViewNumber, vals dbftconsensus.ValidatorSet) *ConsensusState {
	s := &ConsensusState{
		height: height,
		view:   view,
		vals:   vals,

		records:  make(map[dbftconsensus.MessageKind][]dbftconsensus.SignedMessage),
		expected: make(map[dbftconsensus.MessageKind][]dbftconsensus.ValidatorID),

		cvReasons:      make(map[dbftconsensus.ValidatorID]dbftconsensus.ChangeViewReason),
		cvReasonCounts: make(map[dbftconsensus.ChangeViewReason]uint32),
	}
	s.seedPrepareRequestExpectation()
	return s
}

func (s *ConsensusState) Height() uint64 {
	return s.height
}

func (s *ConsensusState) View() dbftconsensus.ViewNumber {
	return s.view
}

func (s *ConsensusState) Validators() dbftconsensus.ValidatorSet {
	return s.vals
}

// Primary is the validator expected to propose in the current view.
func (s *ConsensusState) Primary() dbftconsensus.Validator {
	return s.vals.PrimaryFor(s.height, s.view)
}

// Proposal returns the proposal hash bound to the current view, if any.
func (s *ConsensusState) Proposal() (dbftconsensus.Hash, bool) {
	return s.proposal, s.hasProposal
}

// Records returns a copy of the accepted messages of the given kind,
// in arrival order.
func (s *ConsensusState) Records(kind dbftconsensus.MessageKind) []dbftconsensus.SignedMessage {
	return slices.Clone(s.records[kind])
}

// HasRecord reports whether id has a recorded message of the given kind.
func (s *ConsensusState) HasRecord(kind dbftconsensus.MessageKind, id dbftconsensus.ValidatorID) bool {
	_, ok := s.Record(kind, id)
	return ok
}

// Record returns the recorded message of the given kind from id.
func (s *ConsensusState) Record(kind dbftconsensus.MessageKind, id dbftconsensus.ValidatorID) (dbftconsensus.SignedMessage, bool) {
	for _, sm := range s.records[kind] {
		if sm.Validator == id {
			return sm, true
		}
	}
	return dbftconsensus.SignedMessage{}, false
}

// PrepareRequest returns the primary's accepted proposal in the current view.
func (s *ConsensusState) PrepareRequest() (dbftconsensus.PrepareRequest, bool) {
	recs := s.records[dbftconsensus.MessageKindPrepareRequest]
	if len(recs) == 0 {
		return dbftconsensus.PrepareRequest{}, false
	}
	return recs[0].Message.(dbftconsensus.PrepareRequest), true
}

// ExpectedParticipants returns the validators still expected
// to send a message of the given kind.
// The boolean is false when nothing is expected.
func (s *ConsensusState) ExpectedParticipants(kind dbftconsensus.MessageKind) ([]dbftconsensus.ValidatorID, bool) {
	ids, ok := s.expected[kind]
	return slices.Clone(ids), ok
}

// MissingValidators returns the expected participants of kind
// that have not yet sent a message of that kind.
func (s *ConsensusState) MissingValidators(kind dbftconsensus.MessageKind) []dbftconsensus.ValidatorID {
	if kind == dbftconsensus.MessageKindPrepareRequest {
		primary := s.Primary().ID
		if s.HasRecord(kind, primary) {
			return nil
		}
		return []dbftconsensus.ValidatorID{primary}
	}

	var missing []dbftconsensus.ValidatorID
	for _, id := range s.expected[kind] {
		if !s.HasRecord(kind, id) {
			missing = append(missing, id)
		}
	}
	return missing
}

// Add validates sm and, if it is acceptable, records it
// and refreshes the expected participants.
//
// Add does not check the signature;
// callers must verify it first, with [dbftconsensus.VerifySignature].
// A rejected message leaves s unchanged.
func (s *ConsensusState) Add(sm dbftconsensus.SignedMessage) error {
	if err := s.Validate(sm); err != nil {
		return err
	}

	s.add(sm)
	if cv, ok := sm.Message.(dbftconsensus.ChangeView); ok {
		s.cvReasons[sm.Validator] = cv.Reason
		s.cvReasonCounts[cv.Reason]++
		s.cvTotal++
	}
	return nil
}

func (s *ConsensusState) add(sm dbftconsensus.SignedMessage) {
	kind := sm.Kind()
	s.records[kind] = append(s.records[kind], sm)

	pr, ok := sm.Message.(dbftconsensus.PrepareRequest)
	if !ok {
		s.refreshExpected(kind)
		return
	}

	s.proposal = pr.ProposalHash
	s.hasProposal = true
	s.refreshExpected(kind)

	held := len(s.records[dbftconsensus.MessageKindPrepareResponse]) +
		len(s.records[dbftconsensus.MessageKindCommit])
	if held == 0 {
		return
	}

	// Votes held before the proposal was bound must name it;
	// their senders may vote again once the others are dropped.
	s.records[dbftconsensus.MessageKindPrepareResponse] = slices.DeleteFunc(
		s.records[dbftconsensus.MessageKindPrepareResponse],
		func(r dbftconsensus.SignedMessage) bool {
			return r.Message.(dbftconsensus.PrepareResponse).ProposalHash != pr.ProposalHash
		},
	)
	s.records[dbftconsensus.MessageKindCommit] = slices.DeleteFunc(
		s.records[dbftconsensus.MessageKindCommit],
		func(r dbftconsensus.SignedMessage) bool {
			return r.Message.(dbftconsensus.Commit).ProposalHash != pr.ProposalHash
		},
	)
	s.refreshExpected(dbftconsensus.MessageKindPrepareResponse)
	s.refreshExpected(dbftconsensus.MessageKindCommit)
}

// PreparedCount is the number of distinct validators that prepared hash:
// the primary, implicitly, through its PrepareRequest,
// plus every PrepareResponse naming hash.
func (s *ConsensusState) PreparedCount(hash dbftconsensus.Hash) int {
	seen := make(map[dbftconsensus.ValidatorID]struct{}, s.vals.Len())
	for _, sm := range s.records[dbftconsensus.MessageKindPrepareRequest] {
		if sm.Message.(dbftconsensus.PrepareRequest).ProposalHash == hash {
			seen[sm.Validator] = struct{}{}
		}
	}
	for _, sm := range s.records[dbftconsensus.MessageKindPrepareResponse] {
		if sm.Message.(dbftconsensus.PrepareResponse).ProposalHash == hash {
			seen[sm.Validator] = struct{}{}
		}
	}
	return len(seen)
}

// Commits returns the recorded Commit messages naming hash.
func (s *ConsensusState) Commits(hash dbftconsensus.Hash) []dbftconsensus.SignedMessage {
	var out []dbftconsensus.SignedMessage
	for _, sm := range s.records[dbftconsensus.MessageKindCommit] {
		if sm.Message.(dbftconsensus.Commit).ProposalHash == hash {
			out = append(out, sm)
		}
	}
	return out
}

// CommitCount is the number of distinct validators that committed hash.
func (s *ConsensusState) CommitCount(hash dbftconsensus.Hash) int {
	// Duplicates are rejected on entry, so each Commit is from a distinct validator.
	return len(s.Commits(hash))
}

// ChangeViewTarget is the view named by the first ChangeView of the current round.
func (s *ConsensusState) ChangeViewTarget() (dbftconsensus.ViewNumber, bool) {
	recs := s.records[dbftconsensus.MessageKindChangeView]
	if len(recs) == 0 {
		return 0, false
	}
	return recs[0].Message.(dbftconsensus.ChangeView).NewView, true
}

// ChangeViewQuorum returns the agreed target view
// once a quorum of validators has requested it.
func (s *ConsensusState) ChangeViewQuorum() (dbftconsensus.ViewNumber, bool) {
	target, ok := s.ChangeViewTarget()
	if !ok || len(s.records[dbftconsensus.MessageKindChangeView]) < s.vals.Quorum() {
		return 0, false
	}
	return target, true
}

// ApplyViewChange moves to newView within the same height.
// All records, expectations, and the bound proposal are discarded;
// change view reason statistics are kept.
func (s *ConsensusState) ApplyViewChange(newView dbftconsensus.ViewNumber) {
	if newView <= s.view {
		panic(fmt.Errorf("BUG: view change from %d to non-increasing view %d", s.view, newView))
	}

	s.view = newView
	clear(s.records)
	clear(s.expected)
	s.proposal = dbftconsensus.Hash{}
	s.hasProposal = false
	s.seedPrepareRequestExpectation()
}

// ChangeViewReasons returns the latest reason given by each validator
// that requested a view change at this height.
func (s *ConsensusState) ChangeViewReasons() map[dbftconsensus.ValidatorID]dbftconsensus.ChangeViewReason {
	out := make(map[dbftconsensus.ValidatorID]dbftconsensus.ChangeViewReason, len(s.cvReasons))
	for k, v := range s.cvReasons {
		out[k] = v
	}
	return out
}

// ChangeViewReasonCounts returns how many ChangeView messages
// gave each reason at this height.
func (s *ConsensusState) ChangeViewReasonCounts() map[dbftconsensus.ChangeViewReason]uint32 {
	out := make(map[dbftconsensus.ChangeViewReason]uint32, len(s.cvReasonCounts))
	for k, v := range s.cvReasonCounts {
		out[k] = v
	}
	return out
}

// ChangeViewTotal is the number of ChangeView messages accepted at this height.
func (s *ConsensusState) ChangeViewTotal() uint32 {
	return s.cvTotal
}

func (s *ConsensusState) allIDs() []dbftconsensus.ValidatorID {
	return s.vals.IDs()
}

func (s *ConsensusState) seedPrepareRequestExpectation() {
	s.expected[dbftconsensus.MessageKindPrepareRequest] = []dbftconsensus.ValidatorID{s.Primary().ID}
}

// refreshExpected recomputes the expectations affected by
// a newly recorded message of the given kind.
func (s *ConsensusState) refreshExpected(kind dbftconsensus.MessageKind) {
	switch kind {
	case dbftconsensus.MessageKindPrepareRequest:
		delete(s.expected, dbftconsensus.MessageKindPrepareRequest)
		if _, ok := s.expected[dbftconsensus.MessageKindPrepareResponse]; !ok {
			s.expected[dbftconsensus.MessageKindPrepareResponse] = s.allIDs()
		}

	case dbftconsensus.MessageKindPrepareResponse:
		responders := s.participants(dbftconsensus.MessageKindPrepareResponse)
		if len(responders) == s.vals.Len() {
			delete(s.expected, dbftconsensus.MessageKindPrepareResponse)
		} else if _, ok := s.expected[dbftconsensus.MessageKindPrepareResponse]; !ok {
			s.expected[dbftconsensus.MessageKindPrepareResponse] = s.allIDs()
		}

		// Only validators that prepared are expected to commit.
		if len(responders) == 0 {
			delete(s.expected, dbftconsensus.MessageKindCommit)
		} else {
			s.expected[dbftconsensus.MessageKindCommit] = responders
		}

	case dbftconsensus.MessageKindCommit:
		want, ok := s.expected[dbftconsensus.MessageKindCommit]
		if !ok {
			return
		}
		for _, id := range want {
			if !s.HasRecord(dbftconsensus.MessageKindCommit, id) {
				return
			}
		}
		delete(s.expected, dbftconsensus.MessageKindCommit)

	case dbftconsensus.MessageKindChangeView:
		if len(s.records[dbftconsensus.MessageKindChangeView]) > 0 {
			s.expected[dbftconsensus.MessageKindChangeView] = s.allIDs()
		} else {
			delete(s.expected, dbftconsensus.MessageKindChangeView)
		}

	default:
		panic(fmt.Errorf("BUG: unhandled message kind %s", kind))
	}
}

// participants returns the sorted, de-duplicated senders of kind.
func (s *ConsensusState) participants(kind dbftconsensus.MessageKind) []dbftconsensus.ValidatorID {
	recs := s.records[kind]
	out := make([]dbftconsensus.ValidatorID, 0, len(recs))
	for _, sm := range recs {
		out = append(out, sm.Validator)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
