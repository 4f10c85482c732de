// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity manages the long-term ed25519 keys that authenticate
// the two ends of a bridged session.
//
// A private identity is stored on disk as its 32-byte seed, sealed with
// age to one or more x25519 recipients (see lib/sealed). The public half
// is stored next to it as a single hex line in a ".pub" file, which is
// what operators copy into the peer's trusted key list. [Fingerprint]
// gives a short BLAKE3-based form for logs and confirmation prompts.
//
// Loaded private keys live in allocator buffers so a daemon configured
// with [buffer.Locked] keeps them out of swap and core dumps.
package identity
