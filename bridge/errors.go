// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
)

var (
	// ErrOutOfMemory means a request envelope could not be allocated.
	// No I/O took place and the session is unaffected. It is the same
	// value as buffer.ErrOutOfMemory.
	ErrOutOfMemory = buffer.ErrOutOfMemory

	// ErrTransportFailure means the round trip did not complete or
	// produced no reply. The responder's view of the session is
	// unknown; the session must be treated as closed.
	ErrTransportFailure = errors.New("bridge: transport failure")

	// ErrInvalidSession means the responder has no usable session with
	// the given id.
	ErrInvalidSession = errors.New("bridge: invalid session")

	// ErrUnexpectedReply means the reply decoded cleanly but is not the
	// kind the operation expects.
	ErrUnexpectedReply = errors.New("bridge: unexpected reply kind")
)

// Operation names used in OperationError and log records.
const (
	OpRequestSession   = "request_session"
	OpExchangeMessages = "exchange_messages"
	OpSendRequest      = "send_request"
	OpEndSession       = "end_session"
)

// OperationError records which operation failed, for which session,
// and why. Err unwraps to a sentinel from this package or from
// lib/envelope.
type OperationError struct {
	Op        string
	SessionID envelope.SessionID
	Err       error
}

func (e *OperationError) Error() string {
	if e.Op == OpRequestSession {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (session %d): %v", e.Op, e.SessionID, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// RemoteError is a failure status the responder reported in an error
// reply, other than an invalid session.
type RemoteError struct {
	Status envelope.Status
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: responder reported %s", e.Status)
}

// statusError maps an error reply's status onto the error taxonomy.
func statusError(status envelope.Status) error {
	if status == envelope.StatusInvalidSession {
		return ErrInvalidSession
	}
	return &RemoteError{Status: status}
}

// IsSessionFatal reports whether err leaves the session unusable:
// transport failures, undecodable or unexpected replies, and invalid
// session reports. Allocation failures and other responder statuses
// leave the session as it was.
func IsSessionFatal(err error) bool {
	return errors.Is(err, ErrTransportFailure) ||
		errors.Is(err, ErrInvalidSession) ||
		errors.Is(err, ErrUnexpectedReply) ||
		envelope.IsDecodeError(err)
}
