// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enclave

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/bureau-foundation/dhbridge/lib/envelope"
	"github.com/bureau-foundation/dhbridge/responder"
)

// Compile-time interface check.
var _ responder.Enclave = (*Responder)(nil)

// Responder runs the responder's half of the handshake and serves
// established sessions with a Service.
type Responder struct {
	config  Config
	service Service

	mu       sync.Mutex
	sessions map[envelope.SessionID]*responderSession
}

// responderSession holds handshake state until msg2 arrives, then the
// channel.
type responderSession struct {
	ephemeral *ephemeral
	msg1      envelope.DHMsg1
	channel   *Channel
}

// NewResponder validates config and returns a Responder serving
// service.
func NewResponder(config Config, service Service) (*Responder, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, fmt.Errorf("enclave: service is required")
	}
	return &Responder{
		config:   config,
		service:  service,
		sessions: make(map[envelope.SessionID]*responderSession),
	}, nil
}

// StartSession creates handshake state for id and returns msg1.
func (r *Responder) StartSession(id envelope.SessionID) (envelope.DHMsg1, error) {
	eph, err := newEphemeral(r.config.KeyAllocator)
	if err != nil {
		return envelope.DHMsg1{}, err
	}

	session := &responderSession{ephemeral: eph}
	copy(session.msg1[publicKeyOffset:], eph.public[:])
	copy(session.msg1[identityOffset:], r.config.publicIdentity())
	if _, err := io.ReadFull(rand.Reader, session.msg1[nonceOffset:signedPrefix]); err != nil {
		eph.release()
		return envelope.DHMsg1{}, fmt.Errorf("generating handshake nonce: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		eph.release()
		return envelope.DHMsg1{}, fmt.Errorf("%w: %d", ErrSessionExists, id)
	}
	r.sessions[id] = session
	return session.msg1, nil
}

// ExchangeReport verifies the initiator's msg2, establishes the
// session's channel and returns msg3. A failure leaves the session
// pending until EndSession, which the responder calls as soon as it
// reports the failure.
func (r *Responder) ExchangeReport(id envelope.SessionID, msg2 *envelope.DHMsg2) (envelope.DHMsg3, error) {
	r.mu.Lock()
	session, exists := r.sessions[id]
	r.mu.Unlock()
	if !exists || session.channel != nil || session.ephemeral == nil {
		return envelope.DHMsg3{}, fmt.Errorf("%w: %d is not awaiting msg2", ErrUnknownSession, id)
	}

	if !zeroPadded(msg2[:], msg2Used) {
		return envelope.DHMsg3{}, fmt.Errorf("%w: msg2 padding is not zero", ErrMalformedMessage)
	}
	initiatorIdentity := ed25519.PublicKey(msg2[identityOffset:nonceOffset])
	if !r.config.trusts(initiatorIdentity) {
		return envelope.DHMsg3{}, fmt.Errorf("%w: initiator %x", ErrUntrustedPeer, []byte(initiatorIdentity))
	}
	h1 := transcriptHash(id, session.msg1[:], msg2[:])
	signature := msg2[signatureOffset:msg2Used]
	if !ed25519.Verify(initiatorIdentity, h1, signature) {
		return envelope.DHMsg3{}, ErrBadSignature
	}

	h2 := confirmHash(h1, signature)
	keys, err := deriveKeys(r.config.KeyAllocator, session.ephemeral.private, msg2[publicKeyOffset:identityOffset], h2)
	if err != nil {
		return envelope.DHMsg3{}, err
	}

	var msg3 envelope.DHMsg3
	copy(msg3[:], ed25519.Sign(r.config.Identity, h2))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] != session {
		releaseKeys(keys)
		return envelope.DHMsg3{}, fmt.Errorf("%w: %d ended during the exchange", ErrUnknownSession, id)
	}
	session.ephemeral.release()
	session.ephemeral = nil
	session.channel = newChannel(id, responderToInitiator, keys)
	return msg3, nil
}

// HandleRequest opens an encrypted request, runs the service and
// seals its reply. A reply that would not fit in maxResponseSize is
// refused before sealing, so the channel's sequence numbers stay in
// step with the initiator's.
func (r *Responder) HandleRequest(ctx context.Context, id envelope.SessionID, request []byte, maxResponseSize uint64) ([]byte, error) {
	r.mu.Lock()
	session, exists := r.sessions[id]
	r.mu.Unlock()
	if !exists || session.channel == nil {
		return nil, fmt.Errorf("%w: %d is not established", ErrUnknownSession, id)
	}

	plaintext, err := session.channel.Open(request)
	if err != nil {
		return nil, err
	}
	reply, err := r.service(ctx, id, plaintext)
	clear(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", responder.ErrServiceFailure, err)
	}
	if needed := uint64(len(reply) + RecordOverhead); needed > maxResponseSize {
		return nil, fmt.Errorf("%w: %d bytes sealed, limit %d", responder.ErrResponseTooLarge, needed, maxResponseSize)
	}
	return session.channel.Seal(reply)
}

// EndSession discards all state for id.
func (r *Responder) EndSession(id envelope.SessionID) {
	r.mu.Lock()
	session, exists := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !exists {
		return
	}
	session.ephemeral.release()
	if session.channel != nil {
		session.channel.Close()
	}
}

// Sessions returns the number of sessions with state.
func (r *Responder) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
