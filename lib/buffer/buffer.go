// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrOutOfMemory is returned when an allocator cannot provide the
	// requested region.
	ErrOutOfMemory = errors.New("buffer: out of memory")

	// ErrAlreadyReleased is returned by the second and later calls to
	// Release on the same Buffer.
	ErrAlreadyReleased = errors.New("buffer: already released")
)

// Allocator hands out owned buffers. Implementations must be safe for
// concurrent use.
type Allocator interface {
	// Allocate returns a zero-filled buffer of exactly size bytes. The
	// caller owns the result and must Release it.
	Allocate(size int) (*Buffer, error)
}

// Buffer is an owned byte region. It must not be copied after
// creation.
type Buffer struct {
	data     []byte
	free     func([]byte) error
	released atomic.Bool

	// repeated is called on every Release after the first. Tracker
	// uses it to count double releases.
	repeated func()
}

// newBuffer wraps data with the function that returns it to its
// allocator. free may be nil for regions the garbage collector owns.
func newBuffer(data []byte, free func([]byte) error) *Buffer {
	return &Buffer{data: data, free: free}
}

// Bytes returns the buffer contents. The slice is only valid until
// Release; panics if the buffer has already been released.
func (b *Buffer) Bytes() []byte {
	if b.released.Load() {
		panic("buffer: use after release")
	}
	return b.data
}

// Len returns the size of the buffer in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool {
	return b.released.Load()
}

// Release zeroes the contents and returns the region to its allocator.
// Only the first call has any effect.
func (b *Buffer) Release() error {
	if !b.released.CompareAndSwap(false, true) {
		if b.repeated != nil {
			b.repeated()
		}
		return ErrAlreadyReleased
	}
	clear(b.data)
	data := b.data
	b.data = nil
	if b.free != nil {
		if err := b.free(data); err != nil {
			return fmt.Errorf("buffer: releasing %d bytes: %w", len(data), err)
		}
	}
	return nil
}

// Heap allocates buffers from the Go heap.
type Heap struct {
	// Limit is the largest single allocation permitted. Zero means no
	// limit beyond what the runtime can satisfy.
	Limit int
}

// Allocate returns a heap buffer of size bytes.
func (h Heap) Allocate(size int) (*Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrOutOfMemory, size)
	}
	if h.Limit > 0 && size > h.Limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrOutOfMemory, size, h.Limit)
	}
	return newBuffer(make([]byte, size), nil), nil
}
