// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
)

// Compile-time interface check.
var _ Transport = (*Unix)(nil)

// Unix is a Transport over a Unix stream socket. Each round trip opens
// its own connection, so one Unix value can be shared by any number of
// sessions.
type Unix struct {
	// SocketPath is the responder's listening socket.
	SocketPath string

	// DialTimeout bounds connection setup. Zero leaves it to ctx.
	DialTimeout time.Duration

	// MaxBodySize caps the body a reply may declare. Zero means
	// envelope.DefaultMaxBodySize.
	MaxBodySize uint64
}

// SendReceive dials the socket, writes request, half-closes the write
// side and reads one reply envelope. Cancelling ctx aborts the round
// trip by closing the connection.
func (u *Unix) SendReceive(ctx context.Context, request []byte, allocator buffer.Allocator) (*buffer.Buffer, error) {
	dialer := net.Dialer{Timeout: u.DialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", u.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.SocketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := WriteEnvelope(conn, request); err != nil {
		return nil, u.contextError(ctx, err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		if err := unixConn.CloseWrite(); err != nil {
			return nil, u.contextError(ctx, fmt.Errorf("half-closing request: %w", err))
		}
	}

	reply, err := ReadEnvelope(conn, allocator, maxBody(u.MaxBodySize))
	if err != nil {
		return nil, u.contextError(ctx, err)
	}
	return reply, nil
}

// contextError prefers the context's error when cancellation is what
// broke the connection.
func (u *Unix) contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("round trip to %s: %w", u.SocketPath, ctxErr)
	}
	return err
}
