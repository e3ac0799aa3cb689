package dbftconsensus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/stretchr/testify/require"
)

func TestMessageKind_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ChangeView", dbftconsensus.MessageKindChangeView.String())
	require.Equal(t, "PrepareRequest", dbftconsensus.MessageKindPrepareRequest.String())
	require.Equal(t, "PrepareResponse", dbftconsensus.MessageKindPrepareResponse.String())
	require.Equal(t, "Commit", dbftconsensus.MessageKindCommit.String())
	require.Equal(t, "MessageKind(7)", dbftconsensus.MessageKind(7).String())

	require.Equal(t, "TxNotFound", dbftconsensus.ChangeViewReasonTxNotFound.String())
	require.False(t, dbftconsensus.ChangeViewReason(6).Valid())
}

func TestProposalHashOf(t *testing.T) {
	t.Parallel()

	h := dbftconsensus.Hash{9}

	got, ok := dbftconsensus.ProposalHashOf(dbftconsensus.Commit{ProposalHash: h})
	require.True(t, ok)
	require.Equal(t, h, got)

	got, ok = dbftconsensus.ProposalHashOf(dbftconsensus.PrepareResponse{ProposalHash: h})
	require.True(t, ok)
	require.Equal(t, h, got)

	_, ok = dbftconsensus.ProposalHashOf(dbftconsensus.ChangeView{NewView: 1})
	require.False(t, ok)
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	sm := fx.Sign(ctx, 1, 10, 0, dbftconsensus.Commit{ProposalHash: dbftconsensus.Hash{1}})

	require.NoError(t, dbftconsensus.VerifySignature(fx.Vals, fx.SignatureScheme, sm))

	t.Run("wrong validator", func(t *testing.T) {
		t.Parallel()

		bad := sm
		bad.Validator = 2
		err := dbftconsensus.VerifySignature(fx.Vals, fx.SignatureScheme, bad)

		var sigErr dbftconsensus.InvalidSignatureError
		require.True(t, errors.As(err, &sigErr))
		require.Equal(t, dbftconsensus.ValidatorID(2), sigErr.Validator)
	})

	t.Run("unknown validator", func(t *testing.T) {
		t.Parallel()

		bad := sm
		bad.Validator = 40
		err := dbftconsensus.VerifySignature(fx.Vals, fx.SignatureScheme, bad)
		require.ErrorIs(t, err, dbftconsensus.UnknownValidatorError{Validator: 40})
	})

	t.Run("different height", func(t *testing.T) {
		t.Parallel()

		bad := sm
		bad.Height = 11
		err := dbftconsensus.VerifySignature(fx.Vals, fx.SignatureScheme, bad)
		require.ErrorAs(t, err, new(dbftconsensus.InvalidSignatureError))
	})
}
