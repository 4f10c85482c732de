// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
)

// ReadEnvelope reads exactly one envelope from r into a buffer from
// allocator. The header's body size determines how much is read; a
// body larger than maxBodySize is refused before anything is
// allocated. The returned buffer holds header and body.
//
// EOF before the first byte is [ErrNoReply]. EOF after it is
// [ErrTruncatedReply]. On any error the buffer, if one was allocated,
// has already been released.
func ReadEnvelope(r io.Reader, allocator buffer.Allocator, maxBodySize uint64) (*buffer.Buffer, error) {
	var header [envelope.HeaderSize]byte
	if n, err := io.ReadFull(r, header[:]); err != nil {
		switch {
		case n == 0 && errors.Is(err, io.EOF):
			return nil, ErrNoReply
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: %d of %d header bytes", ErrTruncatedReply, n, envelope.HeaderSize)
		default:
			return nil, fmt.Errorf("reading envelope header: %w", err)
		}
	}

	decoded, err := envelope.DecodeHeader(header[:])
	if err != nil {
		return nil, err
	}
	if decoded.BodySize > maxBodySize {
		return nil, fmt.Errorf("%w: body of %d bytes, limit %d", ErrReplyTooLarge, decoded.BodySize, maxBodySize)
	}

	total := envelope.HeaderSize + int(decoded.BodySize)
	buf, err := allocator.Allocate(total)
	if err != nil {
		return nil, err
	}
	data := buf.Bytes()
	copy(data, header[:])
	if n, err := io.ReadFull(r, data[envelope.HeaderSize:]); err != nil {
		buf.Release()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %d of %d body bytes", ErrTruncatedReply, n, decoded.BodySize)
		}
		return nil, fmt.Errorf("reading envelope body: %w", err)
	}
	return buf, nil
}

// WriteEnvelope writes an encoded envelope to w.
func WriteEnvelope(w io.Writer, data []byte) error {
	if len(data) < envelope.HeaderSize {
		return fmt.Errorf("%w: %d bytes is shorter than a header", envelope.ErrMalformedEnvelope, len(data))
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing envelope: %w", err)
	}
	return nil
}

// maxBody returns limit, or envelope.DefaultMaxBodySize when limit is
// zero.
func maxBody(limit uint64) uint64 {
	if limit == 0 {
		return envelope.DefaultMaxBodySize
	}
	return limit
}
