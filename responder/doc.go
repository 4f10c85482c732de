// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package responder is the serving side of a bridged session. It
// decodes each request envelope, tracks sessions by id, and passes the
// opaque handshake and request payloads to an [Enclave], which holds
// the keys.
//
// Session ids come from a wrapping counter that skips zero and any id
// still live, so an id is never shared by two live sessions. A session
// moves from pending (msg1 sent) to established (msg3 sent) and is
// removed on close, by an operator through [Responder.EndSession], or
// by [Responder.Reap] once idle for longer than the configured
// timeout. When the enclave rejects msg2 or an encrypted request, the
// session is ended before the invalid-session reply goes out, since
// the initiator will not send a close after that reply. Reaping covers
// handshakes the initiator simply abandons.
//
// Every failure is answered with an error reply envelope carrying an
// [envelope.Status], so the initiator can tell a rejected session from
// a dropped connection.
package responder
