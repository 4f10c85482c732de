// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buffer provides owned byte regions for the request and reply
// envelopes that cross the bridge's trust boundary.
//
// A [Buffer] is obtained from an [Allocator] and must be released
// exactly once with [Buffer.Release]. Release zeroes the contents so
// payloads from one session never linger in memory reused by another.
// A second Release returns [ErrAlreadyReleased] and frees nothing.
//
// Allocators:
//
//   - [Heap] allocates from the Go heap, optionally bounded by a
//     per-allocation limit.
//   - [Locked] allocates anonymous mmap memory outside the Go heap,
//     locked against swap (mlock) and excluded from core dumps
//     (MADV_DONTDUMP). The garbage collector never copies it.
//   - [Tracker] wraps another allocator and counts allocations,
//     releases, double releases and outstanding bytes. Tests use it as
//     the leak harness; the responder reports its counters over the
//     control socket.
//
// Every allocation failure is reported as [ErrOutOfMemory], wrapped
// with the underlying cause when there is one.
package buffer
