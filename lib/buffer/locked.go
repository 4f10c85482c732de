// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Locked allocates buffers from anonymous mmap regions that are locked
// into RAM and excluded from core dumps. Use it when envelopes may
// carry key material or plaintext that must not reach swap.
type Locked struct {
	// Limit is the largest single allocation permitted. Zero means no
	// limit; RLIMIT_MEMLOCK still applies.
	Limit int
}

// Allocate maps, locks and returns a region of size bytes. A
// zero-length request returns an empty buffer without touching mmap.
func (l Locked) Allocate(size int) (*Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrOutOfMemory, size)
	}
	if l.Limit > 0 && size > l.Limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrOutOfMemory, size, l.Limit)
	}
	if size == 0 {
		return newBuffer([]byte{}, nil), nil
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrOutOfMemory, size, err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("%w: mlock %d bytes: %v", ErrOutOfMemory, size, err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("%w: madvise(MADV_DONTDUMP): %v", ErrOutOfMemory, err)
	}

	return newBuffer(data, unmapLocked), nil
}

// unmapLocked is called after Release has zeroed the region.
func unmapLocked(data []byte) error {
	var firstError error
	if err := unix.Munlock(data); err != nil {
		firstError = fmt.Errorf("munlock: %w", err)
	}
	if err := unix.Munmap(data); err != nil && firstError == nil {
		firstError = fmt.Errorf("munmap: %w", err)
	}
	return firstError
}
