// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for dhbridge
// key files. It wraps filippo.io/age for the operations the identity
// tooling needs: generate x25519 keypairs, encrypt to one or more
// recipients, and decrypt with a private key.
//
// Ciphertext is ASCII-armored so sealed files can be inspected and
// copied around as text. Private keys and decrypted plaintext are
// returned in [buffer.Buffer] values from a caller-chosen allocator,
// normally [buffer.Locked], and are zeroed on Release.
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair
//   - [Encrypt] -- encrypt to age public key recipients
//   - [Decrypt] -- decrypt with a private key
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
package sealed
