package dbftcodec

import "fmt"

// DecodeReason classifies a [DecodeError].
type DecodeReason uint8

//go:generate go run golang.org/x/tools/cmd/stringer -type DecodeReason -trimprefix=Reason .

const (
	// The input ended before a complete value was read.
	ReasonTruncated DecodeReason = iota + 1

	// A discriminant byte did not name any known variant.
	ReasonUnknownTag

	// A field was read successfully but its value is not permitted.
	ReasonOutOfRange

	// A complete value was read but input remained.
	ReasonTrailingBytes
)

// DecodeError is returned for any malformed input.
type DecodeError struct {
	Reason DecodeReason

	// Byte offset into the input where the problem was detected.
	Offset int

	// Name of the field being decoded.
	Field string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s at offset %d: %s", e.Field, e.Offset, e.Reason)
}
