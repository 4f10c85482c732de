// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge carries a secure session between an initiator and a
// responder across untrusted code. It implements the four session
// operations: request a session, exchange key-agreement messages, send
// an encrypted request, and end the session. Each is one synchronous
// round trip over a [transport.Transport].
//
// The bridge never interprets what it carries. Handshake messages are
// fixed-size opaque blobs, and requests and replies are opaque
// ciphertext. Its whole job is framing, session-id correlation and
// buffer discipline:
//
//   - Every request envelope is allocated from the configured
//     [buffer.Allocator] and every reply comes back in a buffer from
//     the same allocator. Both are released before the operation
//     returns, on every path.
//   - Results are copied into caller-owned storage. On failure that
//     storage is left untouched.
//   - Replies to SendRequest are copied with a truncating copy of
//     min(reply length, len(response)) bytes. Truncation is silent
//     here; the secure channel's integrity check is what detects it.
//
// A Bridge holds no per-session state and is safe for concurrent use.
// Callers that need per-session ordering (see package initiator) add
// it themselves.
//
// Failures are reported as *[OperationError], which unwraps to one of
// the sentinels in errors.go. [IsSessionFatal] tells a caller whether
// the session id must be abandoned.
package bridge
