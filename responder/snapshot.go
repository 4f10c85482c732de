// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package responder

import (
	"sort"
	"time"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
)

// Snapshot is a point-in-time summary of the session table. It is the
// payload of the control socket's status action.
type Snapshot struct {
	Live        int           `cbor:"live"`
	Pending     int           `cbor:"pending"`
	Established int           `cbor:"established"`
	Opened      uint64        `cbor:"opened"`
	Closed      uint64        `cbor:"closed"`
	Reaped      uint64        `cbor:"reaped"`
	Rejected    uint64        `cbor:"rejected"`
	Failed      uint64        `cbor:"failed"`
	Buffers     *buffer.Stats `cbor:"buffers,omitempty"`
}

// SessionInfo describes one live session.
type SessionInfo struct {
	ID       envelope.SessionID `cbor:"id"`
	State    string             `cbor:"state"`
	Age      time.Duration      `cbor:"age"`
	Idle     time.Duration      `cbor:"idle"`
	Requests uint64             `cbor:"requests"`
}

// Snapshot returns the current counters.
func (r *Responder) Snapshot() Snapshot {
	infos := r.Sessions()

	r.mu.Lock()
	snapshot := Snapshot{
		Live:     len(infos),
		Opened:   r.counters.opened,
		Closed:   r.counters.closed,
		Reaped:   r.counters.reaped,
		Rejected: r.counters.rejected,
		Failed:   r.counters.failed,
	}
	r.mu.Unlock()

	for _, info := range infos {
		switch info.State {
		case statePending.String():
			snapshot.Pending++
		case stateEstablished.String():
			snapshot.Established++
		}
	}
	if r.buffers != nil {
		stats := r.buffers.Stats()
		snapshot.Buffers = &stats
	}
	return snapshot
}

// Sessions lists live sessions ordered by id. A session busy with a
// request is reported once that request finishes.
func (r *Responder) Sessions() []SessionInfo {
	r.mu.Lock()
	live := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	now := r.clock.Now()
	infos := make([]SessionInfo, 0, len(live))
	for _, s := range live {
		s.mu.Lock()
		if s.state != stateEnded {
			infos = append(infos, SessionInfo{
				ID:       s.id,
				State:    s.state.String(),
				Age:      now.Sub(s.created),
				Idle:     now.Sub(s.lastActive),
				Requests: s.requests,
			})
		}
		s.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
