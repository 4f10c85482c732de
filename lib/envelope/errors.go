// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import "errors"

var (
	// ErrMalformedEnvelope is returned when a buffer is too short to
	// hold a header, or the header declares a body larger than the
	// decoder accepts.
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")

	// ErrSizeMismatch is returned when the declared body size does not
	// match the bytes received, or does not match the encoded length
	// of the variant selected by the kind.
	ErrSizeMismatch = errors.New("envelope: size mismatch")

	// ErrUnknownKind is returned for an unrecognized discriminant.
	ErrUnknownKind = errors.New("envelope: unknown kind")

	// ErrShortBuffer is returned by Put when the destination cannot
	// hold the encoded envelope.
	ErrShortBuffer = errors.New("envelope: destination buffer too small")
)

// IsDecodeError reports whether err came from decoding an envelope.
// Callers treat all of these the same way: the peer sent something
// that cannot be repaired locally.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrMalformedEnvelope) ||
		errors.Is(err, ErrSizeMismatch) ||
		errors.Is(err, ErrUnknownKind)
}
