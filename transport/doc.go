// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport moves envelopes between the initiator's bridge and
// the responder. It is the message-oriented boundary the bridge
// consumes: one request in, at most one reply out, with no knowledge
// of what the envelopes contain beyond their header.
//
// Implementations:
//
//   - [Unix] dials a Unix stream socket per round trip, writes the
//     request, half-closes, and reads one header-framed reply.
//   - [UnixListener] is the serving side: it reads one envelope per
//     connection into an allocator buffer, hands it to a [Handler] and
//     writes the handler's reply. It can restrict peers by UID using
//     SO_PEERCRED.
//   - [Memory] calls a Handler directly, for tests and for embedding
//     both sides in one process.
//   - [WithTimeout] bounds the wait of any Transport.
//
// Reply buffers come from the caller's [buffer.Allocator] and are owned
// by the caller, which must Release them exactly once.
package transport
