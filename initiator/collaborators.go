// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package initiator

import "github.com/bureau-foundation/dhbridge/lib/envelope"

// Handshaker is the initiator's half of the key agreement. The bridge
// carries its messages without looking inside them.
type Handshaker interface {
	// ProcessMsg1 consumes the responder's msg1 for session id and
	// writes the initiator's msg2.
	ProcessMsg1(id envelope.SessionID, msg1 *envelope.DHMsg1, msg2 *envelope.DHMsg2) error

	// ProcessMsg3 consumes the responder's msg3, completing the
	// agreement, and returns the session's secure channel.
	ProcessMsg3(id envelope.SessionID, msg3 *envelope.DHMsg3) (Channel, error)
}

// Channel protects request and reply payloads once the handshake is
// complete. If a Channel also implements io.Closer, the Session closes
// it when the session ends.
type Channel interface {
	// Seal protects an outgoing request.
	Seal(plaintext []byte) ([]byte, error)

	// Open verifies and decrypts an incoming reply. A truncated or
	// altered reply must fail here.
	Open(ciphertext []byte) ([]byte, error)

	// Overhead is the number of bytes Seal adds to a plaintext.
	Overhead() int
}
