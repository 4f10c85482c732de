// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/binary"
	"fmt"
)

// Size returns the encoded length of body including the header.
func Size(body Body) int {
	return HeaderSize + body.bodySize()
}

// Put encodes body into dst and returns the number of bytes written.
// dst is typically an allocator-owned request buffer sized with Size.
func Put(dst []byte, body Body) (int, error) {
	size := Size(body)
	if len(dst) < size {
		return 0, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(dst), size)
	}
	PutHeader(dst, Header{Kind: body.Kind(), BodySize: uint64(body.bodySize())})
	body.putBody(dst[HeaderSize:size])
	return size, nil
}

// Encode returns a freshly allocated encoding of body.
func Encode(body Body) []byte {
	buf := make([]byte, Size(body))
	// Cannot fail: buf is exactly Size(body).
	_, _ = Put(buf, body)
	return buf
}

// Decode parses one complete envelope. data must hold exactly the
// header and the declared body: trailing or missing bytes are a size
// mismatch.
func Decode(data []byte) (Envelope, error) {
	header, err := DecodeHeader(data)
	if err != nil {
		return Envelope{}, err
	}

	remaining := uint64(len(data) - HeaderSize)
	if header.BodySize != remaining {
		return Envelope{}, fmt.Errorf("%w: header declares %d body bytes, %d received",
			ErrSizeMismatch, header.BodySize, remaining)
	}

	body, err := decodeBody(header.Kind, data[HeaderSize:])
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Header: header, Body: body}, nil
}

func decodeBody(kind Kind, raw []byte) (Body, error) {
	switch kind {
	case KindRequestMsg1:
		if err := expectSize(kind, raw, 0); err != nil {
			return nil, err
		}
		return RequestMsg1{}, nil

	case KindReplyMsg1:
		if err := expectSize(kind, raw, replyMsg1Size); err != nil {
			return nil, err
		}
		var body ReplyMsg1
		copy(body.DHMsg1[:], raw[:DHMsg1Size])
		body.SessionID = SessionID(binary.LittleEndian.Uint32(raw[DHMsg1Size:]))
		return body, nil

	case KindRequestMsg2:
		if err := expectSize(kind, raw, requestMsg2Size); err != nil {
			return nil, err
		}
		var body RequestMsg2
		copy(body.DHMsg2[:], raw[:DHMsg2Size])
		body.SessionID = SessionID(binary.LittleEndian.Uint32(raw[DHMsg2Size:]))
		return body, nil

	case KindReplyMsg3:
		if err := expectSize(kind, raw, replyMsg3Size); err != nil {
			return nil, err
		}
		var body ReplyMsg3
		copy(body.DHMsg3[:], raw)
		return body, nil

	case KindEncryptedRequest:
		if len(raw) < EncryptedRequestMetadataSize {
			return nil, fmt.Errorf("%w: %s body is %d bytes, metadata alone needs %d",
				ErrSizeMismatch, kind, len(raw), EncryptedRequestMetadataSize)
		}
		requestSize := binary.LittleEndian.Uint64(raw[16:24])
		payload := raw[EncryptedRequestMetadataSize:]
		if requestSize != uint64(len(payload)) {
			return nil, fmt.Errorf("%w: %s declares %d request bytes, body carries %d",
				ErrSizeMismatch, kind, requestSize, len(payload))
		}
		return EncryptedRequest{
			SessionID:       SessionID(binary.LittleEndian.Uint32(raw[0:4])),
			MaxResponseSize: binary.LittleEndian.Uint64(raw[8:16]),
			Request:         payload,
		}, nil

	case KindEncryptedReply:
		return EncryptedReply{Response: raw}, nil

	case KindCloseRequest:
		if err := expectSize(kind, raw, closeRequestSize); err != nil {
			return nil, err
		}
		return CloseRequest{SessionID: SessionID(binary.LittleEndian.Uint32(raw))}, nil

	case KindCloseReply:
		if err := expectSize(kind, raw, 0); err != nil {
			return nil, err
		}
		return CloseReply{}, nil

	case KindErrorReply:
		if err := expectSize(kind, raw, errorReplySize); err != nil {
			return nil, err
		}
		return ErrorReply{Status: Status(binary.LittleEndian.Uint32(raw))}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint32(kind))
	}
}

func expectSize(kind Kind, raw []byte, want int) error {
	if len(raw) != want {
		return fmt.Errorf("%w: %s body is %d bytes, want %d", ErrSizeMismatch, kind, len(raw), want)
	}
	return nil
}
