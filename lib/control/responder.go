// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/dhbridge/lib/codec"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
	"github.com/bureau-foundation/dhbridge/responder"
)

// Action names served by RegisterResponder.
const (
	ActionStatus       = "status"
	ActionListSessions = "list-sessions"
	ActionEndSession   = "end-session"
)

// EndSessionRequest is the body of an end-session request.
type EndSessionRequest struct {
	SessionID envelope.SessionID `cbor:"session_id"`
}

// SessionList is the data of a list-sessions response.
type SessionList struct {
	Sessions []responder.SessionInfo `cbor:"sessions"`
}

// RegisterResponder installs the status, list-sessions and end-session
// actions for r.
func RegisterResponder(server *Server, r *responder.Responder) {
	server.Handle(ActionStatus, func(context.Context, []byte) (any, error) {
		return r.Snapshot(), nil
	})
	server.Handle(ActionListSessions, func(context.Context, []byte) (any, error) {
		return SessionList{Sessions: r.Sessions()}, nil
	})
	server.Handle(ActionEndSession, func(_ context.Context, raw []byte) (any, error) {
		var request EndSessionRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid end-session request: %w", err)
		}
		if request.SessionID == 0 {
			return nil, fmt.Errorf("missing required field: session_id")
		}
		if err := r.EndSession(request.SessionID); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// Status fetches the responder snapshot.
func (c *Client) Status(ctx context.Context) (responder.Snapshot, error) {
	var snapshot responder.Snapshot
	err := c.Call(ctx, ActionStatus, nil, &snapshot)
	return snapshot, err
}

// ListSessions fetches the live sessions.
func (c *Client) ListSessions(ctx context.Context) ([]responder.SessionInfo, error) {
	var list SessionList
	if err := c.Call(ctx, ActionListSessions, nil, &list); err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// EndSession asks the responder to end session id.
func (c *Client) EndSession(ctx context.Context, id envelope.SessionID) error {
	return c.Call(ctx, ActionEndSession, map[string]any{"session_id": uint32(id)}, nil)
}
