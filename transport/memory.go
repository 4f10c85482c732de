// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
)

// Compile-time interface check.
var _ Transport = (*Memory)(nil)

// Memory is an in-process Transport that calls Handler directly. The
// request is copied before the call and the reply is copied into an
// allocator buffer, so neither side can observe the other's memory,
// matching what a socket round trip would give.
type Memory struct {
	Handler Handler
}

// SendReceive invokes the handler. A handler error is reported as
// ErrNoReply, as a dropped connection would be.
func (m *Memory) SendReceive(ctx context.Context, request []byte, allocator buffer.Allocator) (*buffer.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply, err := m.Handler(ctx, append([]byte(nil), request...))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoReply, err)
	}
	if len(reply) == 0 {
		return nil, ErrNoReply
	}

	buf, err := allocator.Allocate(len(reply))
	if err != nil {
		return nil, err
	}
	copy(buf.Bytes(), reply)
	return buf, nil
}
