// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package enclave is a reference implementation of the cryptographic
// layer on both ends of a bridged session. The bridge treats its
// messages as opaque; this package gives them meaning so the daemon,
// the CLI and the integration tests have something real to carry.
//
// The handshake is a signed ephemeral Diffie-Hellman exchange fitted
// into the fixed message sizes:
//
//	msg1 (responder -> initiator):  B | id_R | nonce_R
//	msg2 (initiator -> responder):  A | id_I | nonce_I | sig_I(h1)
//	msg3 (responder -> initiator):  sig_R(h2)
//
// A and B are X25519 public keys, id_I and id_R are Ed25519 identity
// keys, and every unused byte must be zero. h1 is the BLAKE3 hash of a
// domain tag, the session id and the first 96 bytes of msg1 and msg2.
// h2 hashes h1 and sig_I. Each side accepts only peers whose identity
// key is in its trusted set.
//
// Once both signatures check out, HKDF-SHA256 over the X25519 shared
// secret, salted with h2, yields one key per direction. Records on the
// resulting [Channel] are
//
//	seq (8 bytes, little-endian) | nonce (24 bytes) | XChaCha20-Poly1305 ciphertext
//
// authenticated with the session id, direction and seq. Sequence
// numbers must arrive in order; a replayed or reordered record fails.
//
// Private scalars and session keys live in buffers from a
// [buffer.Allocator], so the daemon can keep them in locked memory.
package enclave
