// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enclave

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/bureau-foundation/dhbridge/initiator"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
)

// Compile-time interface check.
var _ initiator.Handshaker = (*Initiator)(nil)

// Initiator runs the initiator's half of the handshake for any number
// of sessions.
type Initiator struct {
	config Config

	mu      sync.Mutex
	pending map[envelope.SessionID]*initiatorHandshake
}

// initiatorHandshake is the state kept between msg2 and msg3.
type initiatorHandshake struct {
	ephemeral         *ephemeral
	responderPublic   [keySize]byte
	responderIdentity ed25519.PublicKey
	h1                []byte
	signature         []byte
}

// NewInitiator validates config and returns an Initiator.
func NewInitiator(config Config) (*Initiator, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Initiator{config: config, pending: make(map[envelope.SessionID]*initiatorHandshake)}, nil
}

// ProcessMsg1 checks the responder's identity and answers with msg2.
func (i *Initiator) ProcessMsg1(id envelope.SessionID, msg1 *envelope.DHMsg1, msg2 *envelope.DHMsg2) error {
	if !zeroPadded(msg1[:], signedPrefix) {
		return fmt.Errorf("%w: msg1 padding is not zero", ErrMalformedMessage)
	}
	responderIdentity := ed25519.PublicKey(append([]byte(nil), msg1[identityOffset:nonceOffset]...))
	if !i.config.trusts(responderIdentity) {
		return fmt.Errorf("%w: responder %x", ErrUntrustedPeer, []byte(responderIdentity))
	}

	eph, err := newEphemeral(i.config.KeyAllocator)
	if err != nil {
		return err
	}

	var out envelope.DHMsg2
	copy(out[publicKeyOffset:], eph.public[:])
	copy(out[identityOffset:], i.config.publicIdentity())
	if _, err := io.ReadFull(rand.Reader, out[nonceOffset:signedPrefix]); err != nil {
		eph.release()
		return fmt.Errorf("generating handshake nonce: %w", err)
	}
	h1 := transcriptHash(id, msg1[:], out[:])
	signature := ed25519.Sign(i.config.Identity, h1)
	copy(out[signatureOffset:], signature)

	state := &initiatorHandshake{
		ephemeral:         eph,
		responderIdentity: responderIdentity,
		h1:                h1,
		signature:         signature,
	}
	copy(state.responderPublic[:], msg1[publicKeyOffset:identityOffset])

	i.mu.Lock()
	if previous, exists := i.pending[id]; exists {
		previous.ephemeral.release()
	}
	i.pending[id] = state
	i.mu.Unlock()

	*msg2 = out
	return nil
}

// ProcessMsg3 verifies the responder's confirmation and returns the
// session's Channel. The pending state for id is discarded whatever
// the outcome.
func (i *Initiator) ProcessMsg3(id envelope.SessionID, msg3 *envelope.DHMsg3) (initiator.Channel, error) {
	i.mu.Lock()
	state, exists := i.pending[id]
	delete(i.pending, id)
	i.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: no msg2 sent for session %d", ErrUnknownSession, id)
	}
	defer state.ephemeral.release()

	if !zeroPadded(msg3[:], signatureSize) {
		return nil, fmt.Errorf("%w: msg3 padding is not zero", ErrMalformedMessage)
	}
	h2 := confirmHash(state.h1, state.signature)
	if !ed25519.Verify(state.responderIdentity, h2, msg3[:signatureSize]) {
		return nil, ErrBadSignature
	}

	keys, err := deriveKeys(i.config.KeyAllocator, state.ephemeral.private, state.responderPublic[:], h2)
	if err != nil {
		return nil, err
	}
	return newChannel(id, initiatorToResponder, keys), nil
}

// Abandon discards pending handshake state for id, if any.
func (i *Initiator) Abandon(id envelope.SessionID) {
	i.mu.Lock()
	state, exists := i.pending[id]
	delete(i.pending, id)
	i.mu.Unlock()
	if exists {
		state.ephemeral.release()
	}
}
