// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import "sync"

// Stats is a snapshot of a Tracker's counters.
type Stats struct {
	Allocations        uint64 `json:"allocations"`
	Releases           uint64 `json:"releases"`
	DoubleReleases     uint64 `json:"double_releases"`
	Failures           uint64 `json:"failures"`
	OutstandingBuffers int64  `json:"outstanding_buffers"`
	OutstandingBytes   int64  `json:"outstanding_bytes"`
}

// Leaked reports whether any buffer is still outstanding or was
// released more than once.
func (s Stats) Leaked() bool {
	return s.OutstandingBuffers != 0 || s.DoubleReleases != 0
}

// Tracker wraps an Allocator and accounts for every buffer it hands
// out. The zero value is not usable; construct with NewTracker.
type Tracker struct {
	inner Allocator

	mu    sync.Mutex
	stats Stats
}

// NewTracker returns a Tracker that allocates from inner.
func NewTracker(inner Allocator) *Tracker {
	return &Tracker{inner: inner}
}

// Allocate allocates from the wrapped allocator and records the
// result.
func (t *Tracker) Allocate(size int) (*Buffer, error) {
	inner, err := t.inner.Allocate(size)
	if err != nil {
		t.mu.Lock()
		t.stats.Failures++
		t.mu.Unlock()
		return nil, err
	}

	t.mu.Lock()
	t.stats.Allocations++
	t.stats.OutstandingBuffers++
	t.stats.OutstandingBytes += int64(size)
	t.mu.Unlock()

	tracked := newBuffer(inner.Bytes(), func([]byte) error {
		t.mu.Lock()
		t.stats.Releases++
		t.stats.OutstandingBuffers--
		t.stats.OutstandingBytes -= int64(size)
		t.mu.Unlock()
		return inner.Release()
	})
	tracked.repeated = func() {
		t.mu.Lock()
		t.stats.DoubleReleases++
		t.mu.Unlock()
	}
	return tracked, nil
}

// Stats returns a snapshot of the counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
