// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enclave

import "errors"

var (
	// ErrUntrustedPeer is returned when the peer's identity key is not
	// in the trusted set.
	ErrUntrustedPeer = errors.New("enclave: untrusted peer identity")

	// ErrBadSignature is returned when a handshake signature does not
	// verify.
	ErrBadSignature = errors.New("enclave: handshake signature invalid")

	// ErrMalformedMessage is returned when a handshake message has
	// non-zero padding or an unusable public key.
	ErrMalformedMessage = errors.New("enclave: malformed handshake message")

	// ErrUnknownSession is returned when a session id has no state in
	// the phase the call expects.
	ErrUnknownSession = errors.New("enclave: unknown session")

	// ErrSessionExists is returned when StartSession is called for an
	// id that already has state.
	ErrSessionExists = errors.New("enclave: session already exists")

	// ErrMalformedRecord is returned when a record is too short to hold
	// its framing.
	ErrMalformedRecord = errors.New("enclave: malformed record")

	// ErrOutOfOrder is returned when a record's sequence number is not
	// the next one expected. Replays fail this way.
	ErrOutOfOrder = errors.New("enclave: record out of order")

	// ErrIntegrity is returned when a record fails authentication.
	ErrIntegrity = errors.New("enclave: record authentication failed")

	// ErrChannelClosed is returned by Seal and Open after Close.
	ErrChannelClosed = errors.New("enclave: channel closed")
)
