// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
)

var (
	// ErrNoReply is returned when the peer closed the connection
	// without sending any reply bytes.
	ErrNoReply = errors.New("transport: no reply")

	// ErrTruncatedReply is returned when the connection ended partway
	// through an envelope.
	ErrTruncatedReply = errors.New("transport: truncated reply")

	// ErrReplyTooLarge is returned when an envelope header declares a
	// body larger than the configured maximum.
	ErrReplyTooLarge = errors.New("transport: envelope exceeds size limit")

	// ErrTimeout is returned by WithTimeout when the inner round trip
	// does not finish in time.
	ErrTimeout = errors.New("transport: round trip timed out")

	// ErrNotSent wraps failures that happen before any I/O, such as
	// WithTimeout failing to allocate its copy of the request. The
	// peer has seen nothing.
	ErrNotSent = errors.New("transport: request not sent")
)

// Transport performs one request/reply round trip.
type Transport interface {
	// SendReceive sends request, a complete encoded envelope, and
	// returns the reply envelope in a buffer obtained from allocator.
	// The caller owns the returned buffer. On error no buffer is
	// returned and nothing is left allocated.
	SendReceive(ctx context.Context, request []byte, allocator buffer.Allocator) (*buffer.Buffer, error)
}

// Handler serves one request envelope and returns the reply envelope.
// The request slice is only valid for the duration of the call. An
// error means no reply is sent; the peer observes a dropped
// connection.
type Handler func(ctx context.Context, request []byte) ([]byte, error)
