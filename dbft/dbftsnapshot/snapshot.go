// Package dbftsnapshot encodes and decodes [dbftstate.Snapshot] values.
//
// The layout, in order, is:
// height (u64), view (u8), proposal (flag byte, then 32 bytes if set),
// records, expected participants,
// change view reasons, change view reason counts,
// and the change view total (u32).
// Collections are count-prefixed and written in ascending key order.
//
// The four sections after records are optional when decoding:
// if the input ends before one of them,
// it and every later section decode as empty.
// This allows reading snapshots written before those sections existed.
package dbftsnapshot

import (
	"encoding/binary"
	"maps"
	"slices"

	"github.com/r3e-network/neodbft/dbft/dbftcodec"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftstate"
)

const (
	maxKinds    = 4
	maxReasons  = 6
	maxPerKind  = dbftconsensus.MaxValidators
	maxReasonBy = dbftconsensus.MaxValidators
)

// Encode returns the binary form of snap.
func Encode(snap dbftstate.Snapshot) []byte {
	var out []byte
	out = binary.LittleEndian.AppendUint64(out, snap.Height)
	out = append(out, byte(snap.View))
	if snap.HasProposal {
		out = append(out, 1)
		out = append(out, snap.Proposal[:]...)
	} else {
		out = append(out, 0)
	}

	kinds := slices.Sorted(maps.Keys(snap.Records))
	out = dbftcodec.AppendVarInt(out, uint64(len(kinds)))
	for _, k := range kinds {
		recs := snap.Records[k]
		out = append(out, byte(k))
		out = dbftcodec.AppendVarInt(out, uint64(len(recs)))
		for _, sm := range recs {
			out = dbftcodec.AppendSignedMessage(out, sm)
		}
	}

	kinds = slices.Sorted(maps.Keys(snap.Expected))
	out = dbftcodec.AppendVarInt(out, uint64(len(kinds)))
	for _, k := range kinds {
		ids := snap.Expected[k]
		out = append(out, byte(k))
		out = dbftcodec.AppendVarInt(out, uint64(len(ids)))
		for _, id := range ids {
			out = binary.LittleEndian.AppendUint16(out, uint16(id))
		}
	}

	vals := slices.Sorted(maps.Keys(snap.ChangeViewReasons))
	out = dbftcodec.AppendVarInt(out, uint64(len(vals)))
	for _, id := range vals {
		out = binary.LittleEndian.AppendUint16(out, uint16(id))
		out = append(out, byte(snap.ChangeViewReasons[id]))
	}

	reasons := slices.Sorted(maps.Keys(snap.ChangeViewReasonCounts))
	out = dbftcodec.AppendVarInt(out, uint64(len(reasons)))
	for _, r := range reasons {
		out = append(out, byte(r))
		out = binary.LittleEndian.AppendUint32(out, snap.ChangeViewReasonCounts[r])
	}

	return binary.LittleEndian.AppendUint32(out, snap.ChangeViewTotal)
}

// Decode parses a snapshot produced by [Encode],
// or by an older encoder that omitted trailing sections.
// Malformed input yields a [*dbftcodec.DecodeError].
//
// Decode performs no semantic validation;
// [dbftstate.FromSnapshot] does that.
func Decode(b []byte) (dbftstate.Snapshot, error) {
	r := dbftcodec.NewReader(b)

	var snap dbftstate.Snapshot
	snap.Height = r.Uint64("height")
	snap.View = dbftconsensus.ViewNumber(r.Uint8("view"))
	switch flag := r.Uint8("proposal flag"); flag {
	case 0:
	case 1:
		snap.HasProposal = true
		r.Fixed(snap.Proposal[:], "proposal")
	default:
		r.Fail(dbftcodec.ReasonOutOfRange, "proposal flag")
	}

	if n := r.VarInt(maxKinds, "records"); n > 0 {
		snap.Records = make(map[dbftconsensus.MessageKind][]dbftconsensus.SignedMessage, n)
		for range n {
			k := readKind(r, "records kind")
			if _, dup := snap.Records[k]; dup && r.Err() == nil {
				r.Fail(dbftcodec.ReasonOutOfRange, "records kind")
			}
			cnt := r.VarInt(maxPerKind, "record count")
			if r.Err() != nil {
				break
			}
			recs := make([]dbftconsensus.SignedMessage, 0, cnt)
			for range cnt {
				sm := dbftcodec.ReadSignedMessage(r)
				if r.Err() != nil {
					break
				}
				recs = append(recs, sm)
			}
			snap.Records[k] = recs
		}
	}

	if r.Err() == nil && r.Remaining() > 0 {
		if n := r.VarInt(maxKinds, "expected"); n > 0 {
			snap.Expected = make(map[dbftconsensus.MessageKind][]dbftconsensus.ValidatorID, n)
			for range n {
				k := readKind(r, "expected kind")
				if _, dup := snap.Expected[k]; dup && r.Err() == nil {
					r.Fail(dbftcodec.ReasonOutOfRange, "expected kind")
				}
				cnt := r.VarInt(maxPerKind, "expected count")
				if r.Err() != nil {
					break
				}
				var ids []dbftconsensus.ValidatorID
				if cnt > 0 {
					ids = make([]dbftconsensus.ValidatorID, cnt)
					for i := range ids {
						ids[i] = dbftconsensus.ValidatorID(r.Uint16("expected validator"))
					}
				}
				snap.Expected[k] = ids
			}
		}
	}

	if r.Err() == nil && r.Remaining() > 0 {
		if n := r.VarInt(maxReasonBy, "change view reasons"); n > 0 {
			snap.ChangeViewReasons = make(map[dbftconsensus.ValidatorID]dbftconsensus.ChangeViewReason, n)
			for range n {
				id := dbftconsensus.ValidatorID(r.Uint16("change view validator"))
				snap.ChangeViewReasons[id] = readReason(r)
			}
		}
	}

	if r.Err() == nil && r.Remaining() > 0 {
		if n := r.VarInt(maxReasons, "change view reason counts"); n > 0 {
			snap.ChangeViewReasonCounts = make(map[dbftconsensus.ChangeViewReason]uint32, n)
			for range n {
				reason := readReason(r)
				snap.ChangeViewReasonCounts[reason] = r.Uint32("change view reason count")
			}
		}
	}

	if r.Err() == nil && r.Remaining() > 0 {
		snap.ChangeViewTotal = r.Uint32("change view total")
	}

	if err := r.Finish("snapshot"); err != nil {
		return dbftstate.Snapshot{}, err
	}
	return snap, nil
}

func readKind(r *dbftcodec.Reader, field string) dbftconsensus.MessageKind {
	k := dbftconsensus.MessageKind(r.Uint8(field))
	if r.Err() == nil && !k.Valid() {
		r.Fail(dbftcodec.ReasonUnknownTag, field)
	}
	return k
}

func readReason(r *dbftcodec.Reader) dbftconsensus.ChangeViewReason {
	reason := dbftconsensus.ChangeViewReason(r.Uint8("change view reason"))
	if r.Err() == nil && !reason.Valid() {
		r.Fail(dbftcodec.ReasonOutOfRange, "change view reason")
	}
	return reason
}
