// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package initiator drives one secure session from the initiating
// side. A [Session] combines a [bridge.Bridge], which moves opaque
// messages, with a [Handshaker], which gives them meaning, and
// enforces the session lifecycle:
//
//	Unestablished -> AwaitingMsg1Reply -> KeyExchangePending -> Established -> Closed
//
// Only an established session carries requests. A session-fatal
// bridge error (see [bridge.IsSessionFatal]) closes the session from
// any state, and a closed session id is never used again. Calls on one
// Session are serialized; separate Sessions share a Bridge freely.
package initiator
