// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package responder

import (
	"context"
	"time"
)

// minReapInterval keeps a short IdleTimeout from turning the reaper
// into a busy loop.
const minReapInterval = time.Second

// Reap removes every session idle since before now minus the idle
// timeout and returns how many it removed. Sessions busy with a
// request are skipped. Reap does nothing when the timeout is zero.
func (r *Responder) Reap(now time.Time) int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTimeout)

	r.mu.Lock()
	candidates := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.Unlock()

	reaped := 0
	for _, s := range candidates {
		if !s.mu.TryLock() {
			continue
		}
		if s.state != stateEnded && s.lastActive.Before(cutoff) {
			state := s.state
			r.finish(s)
			reaped++
			r.logger.Info("session reaped",
				"session_id", s.id,
				"state", state.String(),
				"idle", now.Sub(s.lastActive),
			)
		}
		s.mu.Unlock()
	}

	if reaped > 0 {
		r.mu.Lock()
		r.counters.reaped += uint64(reaped)
		r.mu.Unlock()
	}
	return reaped
}

// Run reaps idle sessions every half idle timeout until ctx is
// cancelled. It returns at once if reaping is disabled.
func (r *Responder) Run(ctx context.Context) error {
	if r.idleTimeout <= 0 {
		return nil
	}
	interval := max(r.idleTimeout/2, minReapInterval)
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Reap(now)
		}
	}
}
