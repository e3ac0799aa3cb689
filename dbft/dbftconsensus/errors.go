package dbftconsensus

import "fmt"

// The errors in this file are returned when an inbound [SignedMessage]
// is rejected. Each one is a local rejection of a single message:
// the consensus state is unchanged and the caller may keep delivering.
//
// Callers distinguish them with errors.As.

// InvalidHeightError indicates a message for a height other than the current one.
type InvalidHeightError struct {
	Expected, Received uint64
}

func (e InvalidHeightError) Error() string {
	return fmt.Sprintf("invalid height: expected %d, received %d", e.Expected, e.Received)
}

// UnknownValidatorError indicates a message attributed to a validator
// outside the current validator set.
type UnknownValidatorError struct {
	Validator ValidatorID
}

func (e UnknownValidatorError) Error() string {
	return fmt.Sprintf("unknown validator %d", e.Validator)
}

// InvalidViewError indicates a non-ChangeView message for a view other than the current one.
type InvalidViewError struct {
	Expected, Received ViewNumber
}

func (e InvalidViewError) Error() string {
	return fmt.Sprintf("invalid view: expected %d, received %d", e.Expected, e.Received)
}

// StaleMessageError indicates a ChangeView message sent from a view
// other than the current one.
type StaleMessageError struct {
	Kind MessageKind

	CurrentView, MessageView ViewNumber
}

func (e StaleMessageError) Error() string {
	return fmt.Sprintf(
		"stale %s message: current view %d, message view %d",
		e.Kind, e.CurrentView, e.MessageView,
	)
}

// DuplicateMessageError indicates a second message of one kind
// from the same validator in the same height and view.
type DuplicateMessageError struct {
	Kind      MessageKind
	Validator ValidatorID
}

func (e DuplicateMessageError) Error() string {
	return fmt.Sprintf("duplicate %s message from validator %d", e.Kind, e.Validator)
}

// StaleViewError indicates a ChangeView whose target does not exceed the current view.
type StaleViewError struct {
	Current, Requested ViewNumber
}

func (e StaleViewError) Error() string {
	return fmt.Sprintf("stale view change: current view %d, requested %d", e.Current, e.Requested)
}

// InconsistentViewError indicates a ChangeView whose target differs from
// the target already recorded for the round.
type InconsistentViewError struct {
	Expected, Received ViewNumber
}

func (e InconsistentViewError) Error() string {
	return fmt.Sprintf("inconsistent view change: expected %d, received %d", e.Expected, e.Received)
}

// InvalidSignatureError indicates a signature that does not verify
// against the attributed validator's public key.
type InvalidSignatureError struct {
	Validator ValidatorID
}

func (e InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid signature from validator %d", e.Validator)
}

// InvalidPrimaryError indicates a PrepareRequest from a validator
// that is not the primary for the current height and view.
type InvalidPrimaryError struct {
	Expected, Actual ValidatorID
}

func (e InvalidPrimaryError) Error() string {
	return fmt.Sprintf("prepare request from non-primary %d (primary is %d)", e.Actual, e.Expected)
}

// ProposalMismatchError indicates a vote for a proposal
// other than the one bound to the round.
type ProposalMismatchError struct {
	Expected, Actual Hash
}

func (e ProposalMismatchError) Error() string {
	return fmt.Sprintf("proposal mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// InvalidProposalError indicates a PrepareRequest whose fields
// do not rebuild into the header it claims to propose.
type InvalidProposalError struct {
	ProposalHash Hash
	Reason       string
}

func (e InvalidProposalError) Error() string {
	return fmt.Sprintf("invalid proposal %s: %s", e.ProposalHash, e.Reason)
}
