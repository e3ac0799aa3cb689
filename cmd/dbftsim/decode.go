package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/r3e-network/neodbft/dbft/dbftcodec"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftp2p"
	"github.com/r3e-network/neodbft/dbft/dbftsnapshot"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode hex-encoded wire data as YAML",
	}

	sub := func(use, short string, decode func([]byte) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " HEX|-",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := readHexArg(cmd.InOrStdin(), args[0])
				if err != nil {
					return err
				}
				v, err := decode(b)
				if err != nil {
					return err
				}
				out, err := yaml.Marshal(v)
				if err != nil {
					return fmt.Errorf("failed to encode output: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			},
		}
	}

	cmd.AddCommand(
		sub("envelope", "Decode a network envelope", func(b []byte) (any, error) {
			env, err := dbftp2p.DecodeEnvelope(b)
			if err != nil {
				return nil, err
			}
			return describeEnvelope(env), nil
		}),
		sub("message", "Decode a signed consensus message", func(b []byte) (any, error) {
			sm, err := dbftcodec.DecodeSignedMessage(b)
			if err != nil {
				return nil, err
			}
			return describeSignedMessage(sm), nil
		}),
		sub("block", "Decode a finalized block", func(b []byte) (any, error) {
			blk, err := dbftcodec.DecodeBlock(b)
			if err != nil {
				return nil, err
			}
			return describeBlock(blk), nil
		}),
		sub("snapshot", "Decode a consensus state snapshot", func(b []byte) (any, error) {
			return describeSnapshot(b)
		}),
	)

	return cmd
}

// readHexArg decodes arg as hex, or reads hex from in if arg is "-".
// Surrounding whitespace and an optional 0x prefix are ignored.
func readHexArg(in io.Reader, arg string) ([]byte, error) {
	s := arg
	if arg == "-" {
		b, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		s = string(b)
	}

	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return b, nil
}

func describeEnvelope(env dbftp2p.Envelope) map[string]any {
	out := map[string]any{"type": env.Type.String()}

	switch env.Type {
	case dbftp2p.EnvelopeTypeConsensus:
		out["message"] = describeSignedMessage(env.Message)

	case dbftp2p.EnvelopeTypeRecoveryRequest:
		out["request"] = map[string]any{
			"height":    env.Request.Height,
			"view":      env.Request.View,
			"validator": env.Request.Validator,
		}

	case dbftp2p.EnvelopeTypeRecoveryResponse:
		resp := map[string]any{
			"height":        env.Response.Height,
			"from":          env.Response.From,
			"snapshot_size": len(env.Response.Snapshot),
		}
		if len(env.Response.Snapshot) > 0 {
			if snap, err := describeSnapshot(env.Response.Snapshot); err != nil {
				resp["snapshot_error"] = err.Error()
			} else {
				resp["snapshot"] = snap
			}
		}
		vcs := make([]any, len(env.Response.ViewChanges))
		for i, sm := range env.Response.ViewChanges {
			vcs[i] = describeSignedMessage(sm)
		}
		resp["view_changes"] = vcs
		out["response"] = resp
	}

	return out
}

func describeSignedMessage(sm dbftconsensus.SignedMessage) map[string]any {
	return map[string]any{
		"kind":      sm.Message.Kind().String(),
		"validator": sm.Validator,
		"height":    sm.Height,
		"view":      sm.View,
		"payload":   describeMessage(sm.Message),
		"signature": hex.EncodeToString(sm.Signature),
	}
}

func describeMessage(m dbftconsensus.ConsensusMessage) map[string]any {
	switch m := m.(type) {
	case dbftconsensus.PrepareRequest:
		return map[string]any{
			"version":       m.Version,
			"prev_hash":     m.PrevHash.String(),
			"timestamp_ms":  m.TimestampMS,
			"nonce":         m.Nonce,
			"height":        m.Height,
			"tx_hashes":     hashStrings(m.TxHashes),
			"proposal_hash": m.ProposalHash.String(),
		}
	case dbftconsensus.PrepareResponse:
		return map[string]any{"proposal_hash": m.ProposalHash.String()}
	case dbftconsensus.Commit:
		return map[string]any{"proposal_hash": m.ProposalHash.String()}
	case dbftconsensus.ChangeView:
		return map[string]any{
			"new_view":     m.NewView,
			"reason":       m.Reason.String(),
			"timestamp_ms": m.TimestampMS,
		}
	default:
		panic(fmt.Errorf("BUG: unhandled consensus message type %T", m))
	}
}

func describeBlock(b dbftconsensus.Block) map[string]any {
	witnesses := make([]any, len(b.Witnesses))
	for i, w := range b.Witnesses {
		witnesses[i] = map[string]any{
			"validator": w.Validator,
			"signature": hex.EncodeToString(w.Signature),
		}
	}

	hdr := b.Header
	return map[string]any{
		"hash":           b.Hash().String(),
		"version":        hdr.Version,
		"index":          hdr.Index,
		"prev_hash":      hdr.PrevHash.String(),
		"merkle_root":    hdr.MerkleRoot.String(),
		"timestamp_ms":   hdr.TimestampMS,
		"nonce":          hdr.Nonce,
		"primary_index":  hdr.PrimaryIndex,
		"next_consensus": hex.EncodeToString(hdr.NextConsensus[:]),
		"tx_hashes":      hashStrings(b.TxHashes),
		"witnesses":      witnesses,
	}
}

func describeSnapshot(b []byte) (map[string]any, error) {
	snap, err := dbftsnapshot.Decode(b)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"height":            snap.Height,
		"view":              snap.View,
		"change_view_total": snap.ChangeViewTotal,
	}
	if snap.HasProposal {
		out["proposal"] = snap.Proposal.String()
	}

	records := make(map[string]any, len(snap.Records))
	for kind, sms := range snap.Records {
		ds := make([]any, len(sms))
		for i, sm := range sms {
			ds[i] = describeSignedMessage(sm)
		}
		records[kind.String()] = ds
	}
	out["records"] = records

	return out, nil
}

func hashStrings(hs []dbftconsensus.Hash) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.String()
	}
	return out
}
