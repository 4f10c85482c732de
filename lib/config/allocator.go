// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
)

// NewAllocator returns the allocator named by Allocator, bounded by
// Limit.
func (b BuffersConfig) NewAllocator() (buffer.Allocator, error) {
	limit := int(b.Limit)
	if limit < 0 || uint64(limit) != uint64(b.Limit) {
		return nil, fmt.Errorf("buffers.limit %s does not fit in an int", b.Limit)
	}
	switch b.Allocator {
	case AllocatorHeap:
		return buffer.Heap{Limit: limit}, nil
	case AllocatorLocked:
		return buffer.Locked{Limit: limit}, nil
	default:
		return nil, fmt.Errorf("unknown buffers.allocator %q", b.Allocator)
	}
}
