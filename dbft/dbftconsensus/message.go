package dbftconsensus

import "fmt"

// ViewNumber counts view changes within one height.
// It resets to zero whenever the height advances.
type ViewNumber uint8

// MessageKind discriminates the consensus message variants.
// The values double as the wire tag of each variant.
type MessageKind uint8

//go:generate go run golang.org/x/tools/cmd/stringer -type MessageKind -trimprefix=MessageKind .

const (
	MessageKindChangeView      MessageKind = 0x00
	MessageKindPrepareRequest  MessageKind = 0x20
	MessageKindPrepareResponse MessageKind = 0x21
	MessageKindCommit          MessageKind = 0x30
)

// MessageKinds returns every message kind in ascending tag order.
func MessageKinds() []MessageKind {
	return []MessageKind{
		MessageKindChangeView,
		MessageKindPrepareRequest,
		MessageKindPrepareResponse,
		MessageKindCommit,
	}
}

// Valid reports whether k is one of the defined kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindChangeView, MessageKindPrepareRequest,
		MessageKindPrepareResponse, MessageKindCommit:
		return true
	default:
		return false
	}
}

// ChangeViewReason is the motive a validator gives for requesting a view change.
type ChangeViewReason uint8

//go:generate go run golang.org/x/tools/cmd/stringer -type ChangeViewReason -trimprefix=ChangeViewReason .

const (
	ChangeViewReasonTimeout ChangeViewReason = iota
	ChangeViewReasonChangeAgreement
	ChangeViewReasonTxNotFound
	ChangeViewReasonTxRejectedByPolicy
	ChangeViewReasonTxInvalid
	ChangeViewReasonBlockRejectedByPolicy
)

// Valid reports whether r is one of the defined reasons.
func (r ChangeViewReason) Valid() bool {
	return r <= ChangeViewReasonBlockRejectedByPolicy
}

// ConsensusMessage is the closed set of consensus payloads:
// [PrepareRequest], [PrepareResponse], [Commit], and [ChangeView].
type ConsensusMessage interface {
	Kind() MessageKind

	isConsensusMessage()
}

// PrepareRequest is the primary's block proposal for a round.
//
// Besides the proposal hash and transaction hashes,
// it carries the header fields a backup needs
// to rebuild the proposed header and check the hash.
type PrepareRequest struct {
	Version     uint32
	PrevHash    Hash
	TimestampMS uint64
	Nonce       uint64

	Height       uint64
	TxHashes     []Hash
	ProposalHash Hash
}

// PrepareResponse is a backup's acceptance of the round's proposal.
type PrepareResponse struct {
	ProposalHash Hash
}

// Commit is a validator's final vote for the round's proposal.
type Commit struct {
	ProposalHash Hash
}

// ChangeView is a request to abandon the current view in favor of NewView.
type ChangeView struct {
	NewView     ViewNumber
	Reason      ChangeViewReason
	TimestampMS uint64
}

func (PrepareRequest) Kind() MessageKind  { return MessageKindPrepareRequest }
func (PrepareResponse) Kind() MessageKind { return MessageKindPrepareResponse }
func (Commit) Kind() MessageKind          { return MessageKindCommit }
func (ChangeView) Kind() MessageKind      { return MessageKindChangeView }

func (PrepareRequest) isConsensusMessage()  {}
func (PrepareResponse) isConsensusMessage() {}
func (Commit) isConsensusMessage()          {}
func (ChangeView) isConsensusMessage()      {}

// ProposalHashOf returns the proposal hash referenced by m,
// or false for a [ChangeView].
func ProposalHashOf(m ConsensusMessage) (Hash, bool) {
	switch m := m.(type) {
	case PrepareRequest:
		return m.ProposalHash, true
	case PrepareResponse:
		return m.ProposalHash, true
	case Commit:
		return m.ProposalHash, true
	case ChangeView:
		return Hash{}, false
	default:
		panic(fmt.Errorf("BUG: unhandled consensus message type %T", m))
	}
}

// SignedMessage is a consensus message attributed to one validator
// at a particular height and view.
type SignedMessage struct {
	Validator ValidatorID
	Height    uint64
	View      ViewNumber
	Message   ConsensusMessage
	Signature []byte
}

func (m SignedMessage) Kind() MessageKind {
	return m.Message.Kind()
}
