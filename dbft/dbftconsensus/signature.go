package dbftconsensus

// SignatureScheme determines the bytes a validator signs for a message.
//
// Implementations must be deterministic,
// and must produce identical sign bytes for every validator's copy
// of the same Commit, so that commit signatures can be aggregated
// into a single witness proof.
type SignatureScheme interface {
	SignBytes(height uint64, view ViewNumber, msg ConsensusMessage) []byte
}

// VerifySignature checks sm's signature against the public key of
// the attributed validator in vs.
//
// The returned error is an [UnknownValidatorError] if the validator is not in vs,
// or an [InvalidSignatureError] if the signature does not verify.
func VerifySignature(vs ValidatorSet, s SignatureScheme, sm SignedMessage) error {
	v, ok := vs.Get(sm.Validator)
	if !ok {
		return UnknownValidatorError{Validator: sm.Validator}
	}

	if !v.PubKey.Verify(s.SignBytes(sm.Height, sm.View, sm.Message), sm.Signature) {
		return InvalidSignatureError{Validator: sm.Validator}
	}

	return nil
}
