// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the responder daemon's administrative
// socket: a CBOR request-response protocol on a Unix socket, one
// request per connection.
//
// A request is a CBOR map with an "action" field plus action-specific
// fields. The reply is a [Response]: {ok: true, data: ...} on success
// or {ok: false, error: "..."} on failure. [Client.Call] turns failures
// into [*ServiceError].
//
// [RegisterResponder] installs the three responder actions:
//
//   - "status" -- a [responder.Snapshot]
//   - "list-sessions" -- the live sessions as [responder.SessionInfo]
//   - "end-session" -- ends the session named by "session_id"
//
// The typed helpers [Client.Status], [Client.ListSessions] and
// [Client.EndSession] wrap them.
package control
