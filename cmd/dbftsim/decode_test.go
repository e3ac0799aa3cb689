package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftcodec"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftp2p"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runDecode(t *testing.T, stdin string, args ...string) map[string]any {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"decode"}, args...))
	require.NoError(t, root.Execute())

	var m map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &m))
	return m
}

func TestDecodeCmd_envelope(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	proposal := dbftconsensustest.TxHashes(5, 1)[0]
	sm := fx.Sign(ctx, 2, 5, 1, dbftconsensus.Commit{ProposalHash: proposal})

	b := dbftp2p.EncodeEnvelope(dbftp2p.ConsensusEnvelope(sm))

	got := runDecode(t, "", "envelope", hex.EncodeToString(b))
	require.Equal(t, "Consensus", got["type"])

	msg := got["message"].(map[string]any)
	require.Equal(t, "Commit", msg["kind"])
	require.Equal(t, 2, msg["validator"])
	require.Equal(t, 5, msg["height"])
	require.Equal(t, 1, msg["view"])
	require.Equal(t, hex.EncodeToString(sm.Signature), msg["signature"])
	require.Equal(t, proposal.String(), msg["payload"].(map[string]any)["proposal_hash"])

	// Same input from stdin, with a prefix and trailing newline.
	fromStdin := runDecode(t, "0x"+hex.EncodeToString(b)+"\n", "envelope", "-")
	require.Equal(t, got, fromStdin)
}

func TestDecodeCmd_recoveryRequest(t *testing.T) {
	t.Parallel()

	b := dbftp2p.EncodeEnvelope(dbftp2p.RecoveryRequestEnvelope(dbftp2p.RecoveryRequest{
		Height: 9, View: 2, Validator: 3,
	}))

	got := runDecode(t, "", "envelope", hex.EncodeToString(b))
	require.Equal(t, "RecoveryRequest", got["type"])
	require.Equal(t, map[string]any{"height": 9, "view": 2, "validator": 3}, got["request"])
}

func TestDecodeCmd_message(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	txs := dbftconsensustest.TxHashes(3, 2)
	sm := fx.SignedPrepareRequest(ctx, 3, 0, dbftconsensus.Hash{}, txs)

	got := runDecode(t, "", "message", hex.EncodeToString(dbftcodec.EncodeSignedMessage(sm)))
	require.Equal(t, "PrepareRequest", got["kind"])
	require.Equal(t, int(fx.Vals.PrimaryFor(3, 0).ID), got["validator"])

	payload := got["payload"].(map[string]any)
	require.Equal(t, []any{txs[0].String(), txs[1].String()}, payload["tx_hashes"])
}

func TestDecodeCmd_block(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	blk := fx.FinalizedBlock(ctx, 4, 0, dbftconsensus.Hash{}, dbftconsensustest.TxHashes(4, 1))

	got := runDecode(t, "", "block", hex.EncodeToString(dbftcodec.EncodeBlock(blk)))
	require.Equal(t, blk.Hash().String(), got["hash"])
	require.Equal(t, 4, got["index"])
	require.Len(t, got["witnesses"], fx.Vals.Quorum())
}

func TestDecodeCmd_invalid(t *testing.T) {
	t.Parallel()

	for name, args := range map[string][]string{
		"not hex":       {"envelope", "xyz"},
		"bad envelope":  {"envelope", "ff"},
		"truncated":     {"block", "00"},
		"missing input": {"message"},
	} {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"decode"}, args...))
		require.Error(t, root.Execute(), name)
	}
}
