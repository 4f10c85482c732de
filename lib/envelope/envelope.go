// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the encoded size of [Header].
const HeaderSize = 16

// Sizes of the opaque handshake blobs. These are the sizes of the DH
// message structs produced by the isolated execution contexts (msg3
// without additional properties).
const (
	DHMsg1Size = 576
	DHMsg2Size = 512
	DHMsg3Size = 452
)

// EncryptedRequestMetadataSize is the fixed prefix of an encrypted
// request body: session_id u32, padding u32, max_response_size u64,
// request_size u64.
const EncryptedRequestMetadataSize = 24

// DefaultMaxBodySize bounds the body size accepted by stream readers
// when the caller does not configure a limit.
const DefaultMaxBodySize = 1 << 20

// Kind is the envelope discriminant. Values are part of the wire
// format and must never be renumbered.
type Kind uint32

const (
	KindRequestMsg1      Kind = 0
	KindReplyMsg1        Kind = 1
	KindRequestMsg2      Kind = 2
	KindReplyMsg3        Kind = 3
	KindEncryptedRequest Kind = 4
	KindEncryptedReply   Kind = 5
	KindCloseRequest     Kind = 6
	KindCloseReply       Kind = 7
	KindErrorReply       Kind = 8
)

var kindNames = map[Kind]string{
	KindRequestMsg1:      "request-msg1",
	KindReplyMsg1:        "reply-msg1",
	KindRequestMsg2:      "request-msg2",
	KindReplyMsg3:        "reply-msg3",
	KindEncryptedRequest: "encrypted-request",
	KindEncryptedReply:   "encrypted-reply",
	KindCloseRequest:     "close-request",
	KindCloseReply:       "close-reply",
	KindErrorReply:       "error-reply",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// Valid reports whether k is a defined discriminant.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsReply reports whether k travels from responder to initiator.
func (k Kind) IsReply() bool {
	switch k {
	case KindReplyMsg1, KindReplyMsg3, KindEncryptedReply, KindCloseReply, KindErrorReply:
		return true
	}
	return false
}

// SessionID is the responder-allocated correlation key for one
// session. It is a plain value: the bridge never tracks it.
type SessionID uint32

// DHMsg1, DHMsg2 and DHMsg3 are the opaque handshake messages.
type (
	DHMsg1 [DHMsg1Size]byte
	DHMsg2 [DHMsg2Size]byte
	DHMsg3 [DHMsg3Size]byte
)

// Status is carried by [ErrorReply] to explain why the responder
// refused a request.
type Status uint32

const (
	StatusInvalidSession   Status = 1
	StatusMalformed        Status = 2
	StatusBusy             Status = 3
	StatusResponseTooLarge Status = 4
	StatusInternal         Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusInvalidSession:
		return "invalid session"
	case StatusMalformed:
		return "malformed request"
	case StatusBusy:
		return "responder busy"
	case StatusResponseTooLarge:
		return "response too large"
	case StatusInternal:
		return "internal error"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Header is the fixed envelope prefix.
type Header struct {
	Kind     Kind
	BodySize uint64
}

// PutHeader writes h into the first HeaderSize bytes of dst.
func PutHeader(dst []byte, h Header) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.Kind))
	binary.LittleEndian.PutUint32(dst[4:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], h.BodySize)
}

// DecodeHeader parses the header at the start of b. It checks only
// that enough bytes are present; kind and size validation belong to
// Decode, which sees the whole envelope.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrMalformedEnvelope, len(b), HeaderSize)
	}
	return Header{
		Kind:     Kind(binary.LittleEndian.Uint32(b[0:4])),
		BodySize: binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}

// Envelope is one decoded wire unit.
type Envelope struct {
	Header Header
	Body   Body
}
