// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package initiator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/dhbridge/bridge"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
)

// ErrInvalidState is returned when an operation is not permitted in the
// session's current state.
var ErrInvalidState = errors.New("initiator: operation not valid in session state")

// State is a session's lifecycle position.
type State int

const (
	StateUnestablished State = iota
	StateAwaitingMsg1Reply
	StateKeyExchangePending
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnestablished:
		return "unestablished"
	case StateAwaitingMsg1Reply:
		return "awaiting-msg1-reply"
	case StateKeyExchangePending:
		return "key-exchange-pending"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// abandoner is implemented by handshakers that keep per-session state
// between ProcessMsg1 and ProcessMsg3.
type abandoner interface {
	Abandon(id envelope.SessionID)
}

// Session is one initiator-side session.
type Session struct {
	bridge     *bridge.Bridge
	handshaker Handshaker
	logger     *slog.Logger

	mu      sync.Mutex
	state   State
	id      envelope.SessionID
	channel Channel
}

// NewSession returns an unestablished session. A nil logger means
// slog.Default().
func NewSession(b *bridge.Bridge, handshaker Handshaker, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{bridge: b, handshaker: handshaker, logger: logger}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the responder-assigned id, or zero before one has been
// assigned.
func (s *Session) ID() envelope.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Establish runs the handshake. A failure before the responder assigns
// an id that is not session-fatal returns the session to
// Unestablished so Establish may be retried. Any failure after that
// closes the session, telling the responder when the error leaves the
// connection usable.
func (s *Session) Establish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnestablished {
		return fmt.Errorf("%w: establish in state %s", ErrInvalidState, s.state)
	}

	s.state = StateAwaitingMsg1Reply
	var msg1 envelope.DHMsg1
	id, err := s.bridge.RequestSession(ctx, &msg1)
	if err != nil {
		if bridge.IsSessionFatal(err) {
			s.state = StateClosed
		} else {
			s.state = StateUnestablished
		}
		return err
	}
	s.id = id
	s.state = StateKeyExchangePending

	var msg2 envelope.DHMsg2
	if err := s.handshaker.ProcessMsg1(id, &msg1, &msg2); err != nil {
		return s.abortLocked(ctx, fmt.Errorf("processing msg1: %w", err))
	}

	var msg3 envelope.DHMsg3
	if err := s.bridge.ExchangeMessages(ctx, &msg2, id, &msg3); err != nil {
		return s.abortLocked(ctx, err)
	}

	channel, err := s.handshaker.ProcessMsg3(id, &msg3)
	if err != nil {
		return s.abortLocked(ctx, fmt.Errorf("processing msg3: %w", err))
	}
	s.channel = channel
	s.state = StateEstablished
	s.logger.Info("session established", "session_id", id)
	return nil
}

// Call seals plaintext, sends it, and returns the opened reply. The
// responder may produce a plaintext reply of at most maxResponseSize
// bytes; the bridge is given room for that plus the channel overhead,
// and any truncation shows up as a failure to open the reply.
func (s *Session) Call(ctx context.Context, plaintext []byte, maxResponseSize uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEstablished {
		return nil, fmt.Errorf("%w: call in state %s", ErrInvalidState, s.state)
	}

	sealed, err := s.channel.Seal(plaintext)
	if err != nil {
		return nil, s.abortLocked(ctx, fmt.Errorf("sealing request: %w", err))
	}

	capacity := maxResponseSize + uint64(s.channel.Overhead())
	response := make([]byte, capacity)
	n, err := s.bridge.SendRequest(ctx, s.id, sealed, capacity, response)
	switch {
	case bridge.IsSessionFatal(err):
		s.closeLocked()
		return nil, err
	case errors.Is(err, bridge.ErrOutOfMemory):
		// The request was sealed but never sent, so the channel's
		// sequence is ahead of the responder's.
		return nil, s.abortLocked(ctx, err)
	case err != nil:
		return nil, err
	}

	reply, err := s.channel.Open(response[:n])
	if err != nil {
		return nil, s.abortLocked(ctx, fmt.Errorf("opening reply: %w", err))
	}
	return reply, nil
}

// Close ends the session. Closing an unestablished or closed session
// involves no I/O. The session is closed afterwards even if the
// responder could not be told.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return nil
	case StateUnestablished:
		s.state = StateClosed
		return nil
	}

	err := s.bridge.EndSession(ctx, s.id)
	s.closeLocked()
	if err != nil {
		return err
	}
	s.logger.Info("session closed", "session_id", s.id)
	return nil
}

// abortLocked closes the session after a failure and, unless cause is
// session-fatal, tells the responder so it can drop its state early.
// Returns cause.
func (s *Session) abortLocked(ctx context.Context, cause error) error {
	if !bridge.IsSessionFatal(cause) {
		if err := s.bridge.EndSession(ctx, s.id); err != nil {
			s.logger.Debug("ending failed session", "session_id", s.id, "error", err)
		}
	}
	s.logger.Warn("session aborted", "session_id", s.id, "state", s.state.String(), "error", cause)
	s.closeLocked()
	return cause
}

// closeLocked moves to Closed and releases the channel and any pending
// handshake state.
func (s *Session) closeLocked() {
	if s.channel != nil {
		if closer, ok := s.channel.(io.Closer); ok {
			closer.Close()
		}
		s.channel = nil
	} else if a, ok := s.handshaker.(abandoner); ok && s.id != 0 {
		a.Abandon(s.id)
	}
	s.state = StateClosed
}
