// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/clock"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
)

var (
	// ErrResponseTooLarge is returned by an Enclave when the reply would
	// exceed the request's max_response_size.
	ErrResponseTooLarge = errors.New("responder: response exceeds max_response_size")

	// ErrServiceFailure is returned by an Enclave when the application
	// behind it failed. The session stays usable.
	ErrServiceFailure = errors.New("responder: service failure")

	// ErrUnknownSession is returned by EndSession for an id with no
	// live session.
	ErrUnknownSession = errors.New("responder: unknown session")
)

// Enclave is the isolated side that owns the session keys.
type Enclave interface {
	// StartSession creates key-agreement state for id and returns msg1.
	StartSession(id envelope.SessionID) (envelope.DHMsg1, error)

	// ExchangeReport consumes msg2 for id and returns msg3.
	ExchangeReport(id envelope.SessionID, msg2 *envelope.DHMsg2) (envelope.DHMsg3, error)

	// HandleRequest decrypts request, serves it, and returns the
	// encrypted reply, which must not exceed maxResponseSize.
	HandleRequest(ctx context.Context, id envelope.SessionID, request []byte, maxResponseSize uint64) ([]byte, error)

	// EndSession discards all state for id.
	EndSession(id envelope.SessionID)
}

// Config configures a Responder.
type Config struct {
	// Enclave serves the sessions. Required.
	Enclave Enclave

	// MaxSessions caps live sessions. Zero means no limit.
	MaxSessions int

	// IdleTimeout is how long a session may go without traffic before
	// Reap removes it. Zero disables reaping.
	IdleTimeout time.Duration

	// Clock drives idle accounting. Nil means clock.Real().
	Clock clock.Clock

	// Buffers, if set, is reported in Snapshot.
	Buffers *buffer.Tracker

	// Logger receives session lifecycle events. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Responder dispatches envelopes to sessions. It is safe for
// concurrent use; calls for different sessions run in parallel and
// calls for one session are serialized.
type Responder struct {
	enclave     Enclave
	maxSessions int
	idleTimeout time.Duration
	clock       clock.Clock
	buffers     *buffer.Tracker
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[envelope.SessionID]*session
	lastID   uint32
	counters counters
}

type counters struct {
	opened   uint64
	closed   uint64
	reaped   uint64
	rejected uint64
	failed   uint64
}

type sessionState int

const (
	statePending sessionState = iota
	stateEstablished
	stateEnded
)

func (s sessionState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateEstablished:
		return "established"
	case stateEnded:
		return "ended"
	default:
		return fmt.Sprintf("sessionState(%d)", int(s))
	}
}

// session is guarded by its own mutex, held for the whole of each
// phase so the enclave never sees two calls for one id at once.
type session struct {
	id envelope.SessionID

	mu         sync.Mutex
	state      sessionState
	created    time.Time
	lastActive time.Time
	requests   uint64
}

// New returns a Responder for config.
func New(config Config) (*Responder, error) {
	if config.Enclave == nil {
		return nil, fmt.Errorf("responder: Enclave is required")
	}
	if config.MaxSessions < 0 {
		return nil, fmt.Errorf("responder: MaxSessions must not be negative")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Responder{
		enclave:     config.Enclave,
		maxSessions: config.MaxSessions,
		idleTimeout: config.IdleTimeout,
		clock:       config.Clock,
		buffers:     config.Buffers,
		logger:      config.Logger,
		sessions:    make(map[envelope.SessionID]*session),
	}, nil
}

// HandleEnvelope serves one request envelope and returns the encoded
// reply. It has the signature of transport.Handler and never returns
// an error: every failure becomes an error reply.
func (r *Responder) HandleEnvelope(ctx context.Context, request []byte) ([]byte, error) {
	decoded, err := envelope.Decode(request)
	if err != nil {
		r.logger.Warn("rejecting undecodable envelope", "bytes", len(request), "error", err)
		return errorReply(envelope.StatusMalformed), nil
	}

	switch body := decoded.Body.(type) {
	case envelope.RequestMsg1:
		return r.startSession(), nil
	case envelope.RequestMsg2:
		return r.exchangeReport(body), nil
	case envelope.EncryptedRequest:
		return r.handleRequest(ctx, body), nil
	case envelope.CloseRequest:
		return r.closeSession(body.SessionID), nil
	default:
		r.logger.Warn("rejecting reply kind sent as a request", "kind", decoded.Header.Kind)
		return errorReply(envelope.StatusMalformed), nil
	}
}

func (r *Responder) startSession() []byte {
	r.mu.Lock()
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.counters.rejected++
		r.mu.Unlock()
		r.logger.Warn("session table full", "max_sessions", r.maxSessions)
		return errorReply(envelope.StatusBusy)
	}
	id := r.allocateIDLocked()
	now := r.clock.Now()
	s := &session{id: id, state: statePending, created: now, lastActive: now}
	// Locked before it is visible so no other phase can run for this id
	// until the enclave has produced msg1.
	s.mu.Lock()
	defer s.mu.Unlock()
	r.sessions[id] = s
	r.mu.Unlock()

	msg1, err := r.enclave.StartSession(id)
	if err != nil {
		s.state = stateEnded
		r.remove(s)
		r.logger.Error("enclave failed to start session", "session_id", id, "error", err)
		return errorReply(envelope.StatusInternal)
	}

	r.mu.Lock()
	r.counters.opened++
	r.mu.Unlock()
	r.logger.Info("session opened", "session_id", id)
	return envelope.Encode(envelope.ReplyMsg1{DHMsg1: msg1, SessionID: id})
}

// allocateIDLocked returns the next id after lastID that is neither
// zero nor live. The caller holds r.mu and has checked that the table
// is not full.
func (r *Responder) allocateIDLocked() envelope.SessionID {
	for {
		r.lastID++
		id := envelope.SessionID(r.lastID)
		if id == 0 {
			continue
		}
		if _, live := r.sessions[id]; !live {
			return id
		}
	}
}

func (r *Responder) exchangeReport(body envelope.RequestMsg2) []byte {
	s, reply := r.acquire(body.SessionID, statePending)
	if s == nil {
		return reply
	}
	defer s.mu.Unlock()

	msg3, err := r.enclave.ExchangeReport(s.id, &body.DHMsg2)
	if err != nil {
		return r.fail(s, "key exchange failed", err)
	}
	s.state = stateEstablished
	r.logger.Info("session established", "session_id", s.id)
	return envelope.Encode(envelope.ReplyMsg3{DHMsg3: msg3})
}

func (r *Responder) handleRequest(ctx context.Context, body envelope.EncryptedRequest) []byte {
	s, reply := r.acquire(body.SessionID, stateEstablished)
	if s == nil {
		return reply
	}
	defer s.mu.Unlock()

	response, err := r.enclave.HandleRequest(ctx, s.id, body.Request, body.MaxResponseSize)
	switch {
	case errors.Is(err, ErrResponseTooLarge):
		r.logger.Warn("response exceeds requested maximum",
			"session_id", s.id,
			"max_response_size", body.MaxResponseSize,
			"error", err,
		)
		return errorReply(envelope.StatusResponseTooLarge)
	case errors.Is(err, ErrServiceFailure):
		r.logger.Warn("service failed", "session_id", s.id, "error", err)
		return errorReply(envelope.StatusInternal)
	case err != nil:
		return r.fail(s, "encrypted request rejected", err)
	}
	if uint64(len(response)) > body.MaxResponseSize {
		r.logger.Warn("enclave reply exceeds requested maximum",
			"session_id", s.id,
			"reply_bytes", len(response),
			"max_response_size", body.MaxResponseSize,
		)
		return errorReply(envelope.StatusResponseTooLarge)
	}

	s.requests++
	r.logger.Debug("request served",
		"session_id", s.id,
		"request_bytes", len(body.Request),
		"reply_bytes", len(response),
	)
	return envelope.Encode(envelope.EncryptedReply{Response: response})
}

func (r *Responder) closeSession(id envelope.SessionID) []byte {
	if err := r.end(id, "closed by initiator"); err != nil {
		r.logger.Warn("close for unknown session", "session_id", id)
		return errorReply(envelope.StatusInvalidSession)
	}
	return envelope.Encode(envelope.CloseReply{})
}

// EndSession removes session id whatever its state. The initiator
// learns of it through an invalid-session reply on its next call.
func (r *Responder) EndSession(id envelope.SessionID) error {
	return r.end(id, "ended by operator")
}

func (r *Responder) end(id envelope.SessionID, reason string) error {
	s := r.lookup(id)
	if s == nil {
		return fmt.Errorf("%w: %d", ErrUnknownSession, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateEnded {
		return fmt.Errorf("%w: %d", ErrUnknownSession, id)
	}
	r.finish(s)

	r.mu.Lock()
	r.counters.closed++
	r.mu.Unlock()
	r.logger.Info("session ended", "session_id", id, "reason", reason)
	return nil
}

// fail ends s after the enclave refused one of its messages and
// returns the invalid-session reply. The initiator treats that reply
// as fatal and sends no close, so the session must not outlive it. The
// caller holds s.mu.
func (r *Responder) fail(s *session, message string, err error) []byte {
	r.finish(s)
	r.mu.Lock()
	r.counters.failed++
	r.mu.Unlock()
	r.logger.Warn(message, "session_id", s.id, "error", err)
	return errorReply(envelope.StatusInvalidSession)
}

// finish ends s in the enclave and removes it from the table. The
// caller holds s.mu.
func (r *Responder) finish(s *session) {
	s.state = stateEnded
	r.enclave.EndSession(s.id)
	r.remove(s)
}

// acquire looks up id, locks it, and checks it is in state want. On
// success the session is returned locked with its activity time
// updated. Otherwise the returned bytes are the error reply.
func (r *Responder) acquire(id envelope.SessionID, want sessionState) (*session, []byte) {
	s := r.lookup(id)
	if s == nil {
		r.logger.Warn("request for unknown session", "session_id", id)
		return nil, errorReply(envelope.StatusInvalidSession)
	}
	s.mu.Lock()
	if s.state != want {
		state := s.state
		s.mu.Unlock()
		r.logger.Warn("request in wrong session state",
			"session_id", id,
			"state", state.String(),
			"expected", want.String(),
		)
		return nil, errorReply(envelope.StatusInvalidSession)
	}
	s.lastActive = r.clock.Now()
	return s, nil
}

func (r *Responder) lookup(id envelope.SessionID) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// remove deletes s from the table if it is still the entry for its id.
func (r *Responder) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
}

func errorReply(status envelope.Status) []byte {
	return envelope.Encode(envelope.ErrorReply{Status: status})
}
