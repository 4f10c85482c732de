// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enclave

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
)

// Message field layout. Offsets are shared by msg1 and msg2 for the
// first three fields.
const (
	keySize       = 32
	nonceSize     = 32
	signatureSize = ed25519.SignatureSize

	publicKeyOffset = 0
	identityOffset  = publicKeyOffset + keySize
	nonceOffset     = identityOffset + ed25519.PublicKeySize
	signedPrefix    = nonceOffset + nonceSize // 96
	signatureOffset = signedPrefix            // msg2 only
	msg2Used        = signatureOffset + signatureSize
)

// Domain separation tags. Changing any of these breaks compatibility
// with every deployed peer.
var (
	tagTranscript = []byte("dhbridge.handshake.transcript.v1")
	tagConfirm    = []byte("dhbridge.handshake.confirm.v1")
	infoToward    = map[direction][]byte{
		initiatorToResponder: []byte("dhbridge.channel.i2r.v1"),
		responderToInitiator: []byte("dhbridge.channel.r2i.v1"),
	}
)

// Config holds the long-term material for one side of the handshake.
type Config struct {
	// Identity is this side's Ed25519 signing key.
	Identity ed25519.PrivateKey

	// Trusted lists the peer identity keys this side will complete a
	// handshake with. It must not be empty.
	Trusted []ed25519.PublicKey

	// KeyAllocator holds ephemeral scalars and session keys. Nil means
	// buffer.Heap{}.
	KeyAllocator buffer.Allocator
}

func (c *Config) validate() error {
	if len(c.Identity) != ed25519.PrivateKeySize {
		return fmt.Errorf("enclave: identity key is %d bytes, want %d", len(c.Identity), ed25519.PrivateKeySize)
	}
	if len(c.Trusted) == 0 {
		return fmt.Errorf("enclave: no trusted peer keys configured")
	}
	for i, key := range c.Trusted {
		if len(key) != ed25519.PublicKeySize {
			return fmt.Errorf("enclave: trusted key %d is %d bytes, want %d", i, len(key), ed25519.PublicKeySize)
		}
	}
	if c.KeyAllocator == nil {
		c.KeyAllocator = buffer.Heap{}
	}
	return nil
}

func (c *Config) publicIdentity() ed25519.PublicKey {
	return c.Identity.Public().(ed25519.PublicKey)
}

func (c *Config) trusts(peer []byte) bool {
	return slices.ContainsFunc(c.Trusted, func(key ed25519.PublicKey) bool {
		return subtle.ConstantTimeCompare(key, peer) == 1
	})
}

// ephemeral is one side's X25519 key pair. The private scalar lives in
// an allocator buffer.
type ephemeral struct {
	private *buffer.Buffer
	public  [keySize]byte
}

func newEphemeral(allocator buffer.Allocator) (*ephemeral, error) {
	private, err := allocator.Allocate(curve25519.ScalarSize)
	if err != nil {
		return nil, fmt.Errorf("allocating ephemeral key: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, private.Bytes()); err != nil {
		private.Release()
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	public, err := curve25519.X25519(private.Bytes(), curve25519.Basepoint)
	if err != nil {
		private.Release()
		return nil, fmt.Errorf("computing ephemeral public key: %w", err)
	}
	e := &ephemeral{private: private}
	copy(e.public[:], public)
	return e, nil
}

func (e *ephemeral) release() {
	if e != nil && !e.private.Released() {
		e.private.Release()
	}
}

// transcriptHash is h1: it binds the session id and both sides'
// unsigned message prefixes.
func transcriptHash(id envelope.SessionID, msg1, msg2 []byte) []byte {
	hasher := blake3.New()
	hasher.Write(tagTranscript)
	var sessionID [4]byte
	binary.LittleEndian.PutUint32(sessionID[:], uint32(id))
	hasher.Write(sessionID[:])
	hasher.Write(msg1[:signedPrefix])
	hasher.Write(msg2[:signedPrefix])
	return hasher.Sum(nil)
}

// confirmHash is h2, the value the responder signs in msg3 and the
// HKDF salt.
func confirmHash(h1, initiatorSignature []byte) []byte {
	hasher := blake3.New()
	hasher.Write(tagConfirm)
	hasher.Write(h1)
	hasher.Write(initiatorSignature)
	return hasher.Sum(nil)
}

// deriveKeys computes the X25519 shared secret and expands it into the
// two directional keys.
func deriveKeys(allocator buffer.Allocator, private *buffer.Buffer, peerPublic, salt []byte) (map[direction]*buffer.Buffer, error) {
	shared, err := curve25519.X25519(private.Bytes(), peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	defer clear(shared)

	keys := make(map[direction]*buffer.Buffer, 2)
	for dir, info := range infoToward {
		key, err := allocator.Allocate(keySize)
		if err != nil {
			releaseKeys(keys)
			return nil, fmt.Errorf("allocating session key: %w", err)
		}
		if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, info), key.Bytes()); err != nil {
			key.Release()
			releaseKeys(keys)
			return nil, fmt.Errorf("deriving session key: %w", err)
		}
		keys[dir] = key
	}
	return keys, nil
}

func releaseKeys(keys map[direction]*buffer.Buffer) {
	for _, key := range keys {
		key.Release()
	}
}

// zeroPadded reports whether every byte of b from offset on is zero.
func zeroPadded(b []byte, offset int) bool {
	return bytes.Count(b[offset:], []byte{0}) == len(b)-offset
}
