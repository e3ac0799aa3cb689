package dbftengine

import "github.com/r3e-network/neodbft/dbft/dbftconsensus"

// Phase is the derived progress of the current round.
type Phase uint8

//go:generate go run golang.org/x/tools/cmd/stringer -type Phase -trimprefix=Phase .

const (
	PhaseAwaitingProposal Phase = iota
	PhasePrepared
	PhaseCommitted
	PhaseFinalized
)

// Status is a point-in-time summary of the engine, for logs and debugging.
type Status struct {
	Height uint64
	View   dbftconsensus.ViewNumber
	Phase  Phase

	// Set when this node has requested a view change in the current view.
	ViewChanging bool

	Primary dbftconsensus.ValidatorID

	Proposal    dbftconsensus.Hash
	HasProposal bool

	Prepared    int
	Committed   int
	ChangeViews int

	IsValidator bool
	Validator   dbftconsensus.ValidatorID
}

// Status summarizes the current round.
func (e *Engine) Status() Status {
	s := Status{
		Height:      e.state.Height(),
		View:        e.state.View(),
		Primary:     e.state.Primary().ID,
		ChangeViews: len(e.state.Records(dbftconsensus.MessageKindChangeView)),
		IsValidator: e.IsValidator(),
	}

	if e.IsValidator() {
		s.Validator = e.self
		s.ViewChanging = e.state.HasRecord(dbftconsensus.MessageKindChangeView, e.self)
	}

	s.Proposal, s.HasProposal = e.state.Proposal()
	if s.HasProposal {
		s.Prepared = e.state.PreparedCount(s.Proposal)
		s.Committed = e.state.CommitCount(s.Proposal)
	}

	switch {
	case e.pending != nil:
		s.Phase = PhaseFinalized
	case e.sentCommit():
		s.Phase = PhaseCommitted
	case !e.IsValidator() && s.HasProposal && s.Prepared >= e.vals.Quorum():
		s.Phase = PhaseCommitted
	case s.HasProposal:
		s.Phase = PhasePrepared
	default:
		s.Phase = PhaseAwaitingProposal
	}

	return s
}
