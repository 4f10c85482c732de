// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope defines the wire format exchanged between the
// untrusted bridge and the responder for every phase of a secure
// session: msg1 request/reply, msg2/msg3 exchange, encrypted
// request/reply, close, and the error reply.
//
// Every envelope is a fixed 16-byte little-endian header followed by a
// body whose length the header declares:
//
//	offset 0   kind       u32
//	offset 4   reserved   u32 (zero on encode, ignored on decode)
//	offset 8   body_size  u64
//	offset 16  body       [body_size]byte
//
// The layout matches the natural C alignment of the FIFO message
// structs used by existing responders, so either side can be replaced
// independently.
//
// [Body] is a closed sum type: one Go type per [Kind]. [Decode] parses
// the header, checks the declared size against the bytes actually
// received, and reconstructs the variant selected by the discriminant.
// Fixed-size variants must match their exact encoded length; the
// encrypted request's inner request_size must agree with the body.
//
// The handshake blobs ([DHMsg1], [DHMsg2], [DHMsg3]) and the encrypted
// payloads are opaque here. The package copies them, it never looks
// inside.
//
// Decoding is zero-copy for variable-length bodies:
// [EncryptedRequest.Request] and [EncryptedReply.Response] alias the
// decoded buffer. Callers that release the buffer must copy first.
//
// This package does no I/O and has no Bureau-internal dependencies.
package envelope
