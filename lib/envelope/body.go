// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import "encoding/binary"

// Body is the typed payload of an envelope. The set of implementations
// is closed: one type per Kind, all defined in this package.
type Body interface {
	// Kind returns the discriminant written into the header.
	Kind() Kind

	bodySize() int
	putBody(dst []byte)
}

// RequestMsg1 asks the responder to open a session. It has no body.
type RequestMsg1 struct{}

// ReplyMsg1 carries the responder's first handshake message and the id
// it allocated for the new session.
type ReplyMsg1 struct {
	DHMsg1    DHMsg1
	SessionID SessionID
}

// RequestMsg2 carries the initiator's second handshake message.
type RequestMsg2 struct {
	DHMsg2    DHMsg2
	SessionID SessionID
}

// ReplyMsg3 carries the responder's final handshake message.
type ReplyMsg3 struct {
	DHMsg3 DHMsg3
}

// EncryptedRequest carries one opaque request for an established
// session. MaxResponseSize is the largest reply the initiator will
// accept; the responder must not produce more.
type EncryptedRequest struct {
	SessionID       SessionID
	MaxResponseSize uint64
	Request         []byte
}

// EncryptedReply carries the opaque response bytes.
type EncryptedReply struct {
	Response []byte
}

// CloseRequest ends a session.
type CloseRequest struct {
	SessionID SessionID
}

// CloseReply acknowledges a close. It has no body.
type CloseReply struct{}

// ErrorReply is sent by the responder in place of the expected reply
// when it refuses a request.
type ErrorReply struct {
	Status Status
}

func (RequestMsg1) Kind() Kind      { return KindRequestMsg1 }
func (ReplyMsg1) Kind() Kind        { return KindReplyMsg1 }
func (RequestMsg2) Kind() Kind      { return KindRequestMsg2 }
func (ReplyMsg3) Kind() Kind        { return KindReplyMsg3 }
func (EncryptedRequest) Kind() Kind { return KindEncryptedRequest }
func (EncryptedReply) Kind() Kind   { return KindEncryptedReply }
func (CloseRequest) Kind() Kind     { return KindCloseRequest }
func (CloseReply) Kind() Kind       { return KindCloseReply }
func (ErrorReply) Kind() Kind       { return KindErrorReply }

const (
	replyMsg1Size    = DHMsg1Size + 4
	requestMsg2Size  = DHMsg2Size + 4
	replyMsg3Size    = DHMsg3Size
	closeRequestSize = 4
	errorReplySize   = 4
)

func (RequestMsg1) bodySize() int        { return 0 }
func (ReplyMsg1) bodySize() int          { return replyMsg1Size }
func (RequestMsg2) bodySize() int        { return requestMsg2Size }
func (ReplyMsg3) bodySize() int          { return replyMsg3Size }
func (b EncryptedRequest) bodySize() int { return EncryptedRequestMetadataSize + len(b.Request) }
func (b EncryptedReply) bodySize() int   { return len(b.Response) }
func (CloseRequest) bodySize() int       { return closeRequestSize }
func (CloseReply) bodySize() int         { return 0 }
func (ErrorReply) bodySize() int         { return errorReplySize }

func (RequestMsg1) putBody([]byte) {}

func (b ReplyMsg1) putBody(dst []byte) {
	copy(dst[:DHMsg1Size], b.DHMsg1[:])
	binary.LittleEndian.PutUint32(dst[DHMsg1Size:], uint32(b.SessionID))
}

func (b RequestMsg2) putBody(dst []byte) {
	copy(dst[:DHMsg2Size], b.DHMsg2[:])
	binary.LittleEndian.PutUint32(dst[DHMsg2Size:], uint32(b.SessionID))
}

func (b ReplyMsg3) putBody(dst []byte) {
	copy(dst, b.DHMsg3[:])
}

func (b EncryptedRequest) putBody(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(b.SessionID))
	binary.LittleEndian.PutUint32(dst[4:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], b.MaxResponseSize)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(len(b.Request)))
	copy(dst[EncryptedRequestMetadataSize:], b.Request)
}

func (b EncryptedReply) putBody(dst []byte) {
	copy(dst, b.Response)
}

func (b CloseRequest) putBody(dst []byte) {
	binary.LittleEndian.PutUint32(dst, uint32(b.SessionID))
}

func (CloseReply) putBody([]byte) {}

func (b ErrorReply) putBody(dst []byte) {
	binary.LittleEndian.PutUint32(dst, uint32(b.Status))
}
