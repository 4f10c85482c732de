// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enclave

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
)

type direction byte

const (
	initiatorToResponder direction = 1
	responderToInitiator direction = 2
)

// RecordOverhead is the number of bytes Seal adds: sequence number,
// nonce and Poly1305 tag.
const RecordOverhead = 8 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var tagRecord = []byte("dhbridge.record.v1")

// Channel seals outgoing records and opens incoming ones for one
// session. It is safe for concurrent use, though records must still
// be opened in the order they were sealed.
type Channel struct {
	id       envelope.SessionID
	outbound direction
	inbound  direction

	mu      sync.Mutex
	keys    map[direction]*buffer.Buffer
	sendSeq uint64
	recvSeq uint64
}

func newChannel(id envelope.SessionID, outbound direction, keys map[direction]*buffer.Buffer) *Channel {
	inbound := responderToInitiator
	if outbound == responderToInitiator {
		inbound = initiatorToResponder
	}
	return &Channel{id: id, outbound: outbound, inbound: inbound, keys: keys}
}

// Overhead returns RecordOverhead.
func (c *Channel) Overhead() int { return RecordOverhead }

// Seal encrypts plaintext as the next outbound record.
func (c *Channel) Seal(plaintext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		return nil, ErrChannelClosed
	}

	aead, err := chacha20poly1305.NewX(c.keys[c.outbound].Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	record := make([]byte, 8+chacha20poly1305.NonceSizeX, RecordOverhead+len(plaintext))
	binary.LittleEndian.PutUint64(record[:8], c.sendSeq)
	nonce := record[8:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating record nonce: %w", err)
	}
	record = aead.Seal(record, nonce, plaintext, c.additionalData(c.outbound, c.sendSeq))
	c.sendSeq++
	return record, nil
}

// Open authenticates and decrypts the next inbound record.
func (c *Channel) Open(record []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		return nil, ErrChannelClosed
	}
	if len(record) < RecordOverhead {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedRecord, len(record), RecordOverhead)
	}

	seq := binary.LittleEndian.Uint64(record[:8])
	if seq != c.recvSeq {
		return nil, fmt.Errorf("%w: got sequence %d, want %d", ErrOutOfOrder, seq, c.recvSeq)
	}
	nonce := record[8 : 8+chacha20poly1305.NonceSizeX]
	ciphertext := record[8+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(c.keys[c.inbound].Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, c.additionalData(c.inbound, seq))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	c.recvSeq++
	return plaintext, nil
}

// Close releases the session keys. Later Seal and Open calls fail with
// ErrChannelClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	releaseKeys(c.keys)
	c.keys = nil
	return nil
}

func (c *Channel) additionalData(dir direction, seq uint64) []byte {
	aad := make([]byte, len(tagRecord)+4+1+8)
	n := copy(aad, tagRecord)
	binary.LittleEndian.PutUint32(aad[n:], uint32(c.id))
	aad[n+4] = byte(dir)
	binary.LittleEndian.PutUint64(aad[n+5:], seq)
	return aad
}
