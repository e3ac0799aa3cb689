package dbftp2p

import (
	"encoding/binary"
	"fmt"

	"github.com/r3e-network/neodbft/dbft/dbftcodec"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// EnvelopeType is the first byte of every envelope on the wire.
type EnvelopeType uint8

//go:generate go run golang.org/x/tools/cmd/stringer -type EnvelopeType -trimprefix=EnvelopeType .

const (
	EnvelopeTypeConsensus        EnvelopeType = 1
	EnvelopeTypeRecoveryRequest  EnvelopeType = 2
	EnvelopeTypeRecoveryResponse EnvelopeType = 3
)

const (
	// MaxSnapshotSize bounds the snapshot carried in a recovery response.
	MaxSnapshotSize = 4 << 20

	// MaxRecoveryViewChanges bounds the ChangeView proofs in a recovery response.
	MaxRecoveryViewChanges = 4096
)

// Envelope is the unit of transport.
// Exactly one of the payload fields is meaningful, as selected by Type.
type Envelope struct {
	Type EnvelopeType

	Message  dbftconsensus.SignedMessage
	Request  RecoveryRequest
	Response RecoveryResponse
}

// RecoveryRequest asks peers at Height for their consensus state.
type RecoveryRequest struct {
	Height    uint64
	View      dbftconsensus.ViewNumber
	Validator dbftconsensus.ValidatorID
}

// RecoveryResponse answers a [RecoveryRequest].
type RecoveryResponse struct {
	Height uint64

	// The responding validator, for logging only; nothing in the response
	// is trusted without its own signature.
	From dbftconsensus.ValidatorID

	// Encoded snapshot of the responder's consensus state.
	Snapshot []byte

	// ChangeView messages that moved the responder past earlier views.
	ViewChanges []dbftconsensus.SignedMessage
}

// ConsensusEnvelope wraps a signed consensus message.
func ConsensusEnvelope(sm dbftconsensus.SignedMessage) Envelope {
	return Envelope{Type: EnvelopeTypeConsensus, Message: sm}
}

// RecoveryRequestEnvelope wraps a recovery request.
func RecoveryRequestEnvelope(req RecoveryRequest) Envelope {
	return Envelope{Type: EnvelopeTypeRecoveryRequest, Request: req}
}

// RecoveryResponseEnvelope wraps a recovery response.
func RecoveryResponseEnvelope(resp RecoveryResponse) Envelope {
	return Envelope{Type: EnvelopeTypeRecoveryResponse, Response: resp}
}

// EncodeEnvelope returns the wire encoding of env.
// It panics if env.Type is not a known type.
func EncodeEnvelope(env Envelope) []byte {
	out := []byte{byte(env.Type)}

	switch env.Type {
	case EnvelopeTypeConsensus:
		return dbftcodec.AppendSignedMessage(out, env.Message)

	case EnvelopeTypeRecoveryRequest:
		out = binary.LittleEndian.AppendUint64(out, env.Request.Height)
		out = append(out, byte(env.Request.View))
		return binary.LittleEndian.AppendUint16(out, uint16(env.Request.Validator))

	case EnvelopeTypeRecoveryResponse:
		r := env.Response
		out = binary.LittleEndian.AppendUint64(out, r.Height)
		out = binary.LittleEndian.AppendUint16(out, uint16(r.From))
		out = dbftcodec.AppendVarBytes(out, r.Snapshot)
		out = dbftcodec.AppendVarInt(out, uint64(len(r.ViewChanges)))
		for _, sm := range r.ViewChanges {
			out = dbftcodec.AppendSignedMessage(out, sm)
		}
		return out

	default:
		panic(fmt.Errorf("BUG: cannot encode envelope of type %d", env.Type))
	}
}

// DecodeEnvelope decodes an envelope produced by [EncodeEnvelope].
// Errors are [*dbftcodec.DecodeError] values.
func DecodeEnvelope(b []byte) (Envelope, error) {
	r := dbftcodec.NewReader(b)

	var env Envelope
	env.Type = EnvelopeType(r.Uint8("envelope type"))

	switch env.Type {
	case EnvelopeTypeConsensus:
		env.Message = dbftcodec.ReadSignedMessage(r)

	case EnvelopeTypeRecoveryRequest:
		env.Request = RecoveryRequest{
			Height:    r.Uint64("request height"),
			View:      dbftconsensus.ViewNumber(r.Uint8("request view")),
			Validator: dbftconsensus.ValidatorID(r.Uint16("request validator")),
		}

	case EnvelopeTypeRecoveryResponse:
		resp := RecoveryResponse{
			Height:   r.Uint64("response height"),
			From:     dbftconsensus.ValidatorID(r.Uint16("response validator")),
			Snapshot: r.VarBytes(MaxSnapshotSize, "response snapshot"),
		}
		if n := r.VarInt(MaxRecoveryViewChanges, "response view changes"); n > 0 {
			resp.ViewChanges = make([]dbftconsensus.SignedMessage, 0, n)
			for range n {
				sm := dbftcodec.ReadSignedMessage(r)
				if r.Err() != nil {
					break
				}
				resp.ViewChanges = append(resp.ViewChanges, sm)
			}
		}
		env.Response = resp

	default:
		if r.Err() == nil {
			// Point the error at the type byte.
			return Envelope{}, &dbftcodec.DecodeError{
				Reason: dbftcodec.ReasonUnknownTag,
				Offset: 0,
				Field:  "envelope type",
			}
		}
	}

	if err := r.Finish("envelope"); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
