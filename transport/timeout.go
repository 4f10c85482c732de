// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/clock"
)

type timeoutTransport struct {
	inner   Transport
	timeout time.Duration
	clock   clock.Clock
}

// WithTimeout returns a Transport that fails with ErrTimeout when inner
// has not finished within d. The abandoned round trip is cancelled; if
// it still produces a reply, that buffer is released in the
// background. A nil clock means clock.Real().
func WithTimeout(inner Transport, d time.Duration, c clock.Clock) Transport {
	if c == nil {
		c = clock.Real()
	}
	return &timeoutTransport{inner: inner, timeout: d, clock: c}
}

type roundTripResult struct {
	reply *buffer.Buffer
	err   error
}

func (t *timeoutTransport) SendReceive(ctx context.Context, request []byte, allocator buffer.Allocator) (*buffer.Buffer, error) {
	// The caller releases request as soon as this returns, which may be
	// before an abandoned round trip stops reading it. The inner call
	// gets its own copy.
	owned, err := allocator.Allocate(len(request))
	if err != nil {
		return nil, fmt.Errorf("%w: copying request: %w", ErrNotSent, err)
	}
	copy(owned.Bytes(), request)

	roundTripContext, cancel := context.WithCancel(ctx)

	// Buffered so the round trip goroutine never blocks after the
	// caller has stopped listening.
	done := make(chan roundTripResult, 1)
	go func() {
		defer owned.Release()
		reply, err := t.inner.SendReceive(roundTripContext, owned.Bytes(), allocator)
		done <- roundTripResult{reply: reply, err: err}
	}()

	var abandoned error
	select {
	case result := <-done:
		cancel()
		return result.reply, result.err
	case <-t.clock.After(t.timeout):
		abandoned = ErrTimeout
	case <-ctx.Done():
		abandoned = ctx.Err()
	}

	cancel()
	go func() {
		if late := <-done; late.reply != nil {
			late.reply.Release()
		}
	}()
	return nil, abandoned
}
