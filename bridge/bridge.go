// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/envelope"
	"github.com/bureau-foundation/dhbridge/transport"
)

// Bridge runs session operations over a Transport.
type Bridge struct {
	// Transport performs the round trips. Required.
	Transport transport.Transport

	// Allocator supplies request and reply buffers. If nil,
	// buffer.Heap{} is used.
	Allocator buffer.Allocator

	// Logger receives structured log output. If nil, slog.Default() is
	// used. Round trips are logged at Debug, failures at Warn.
	Logger *slog.Logger
}

// logger returns the configured logger or the default.
func (b *Bridge) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *Bridge) allocator() buffer.Allocator {
	if b.Allocator != nil {
		return b.Allocator
	}
	return buffer.Heap{}
}

// RequestSession starts a session. On success the responder's first
// key-agreement message is copied to msg1 and the responder-assigned
// session id is returned. The request has no body, so its header is
// built on the stack; only a transport that copies the request before
// sending can make this fail with ErrOutOfMemory.
func (b *Bridge) RequestSession(ctx context.Context, msg1 *envelope.DHMsg1) (envelope.SessionID, error) {
	var request [envelope.HeaderSize]byte
	envelope.PutHeader(request[:], envelope.Header{Kind: envelope.KindRequestMsg1})

	reply, err := b.roundTrip(ctx, OpRequestSession, 0, request[:])
	if err != nil {
		return 0, err
	}
	defer reply.Release()

	body, err := decodeReply[envelope.ReplyMsg1](reply)
	if err != nil {
		return 0, b.fail(OpRequestSession, 0, err)
	}
	*msg1 = body.DHMsg1
	return body.SessionID, nil
}

// ExchangeMessages sends the initiator's msg2 for session id and copies
// the responder's msg3 into msg3. The session id is not checked
// locally; the responder decides whether it is valid.
func (b *Bridge) ExchangeMessages(ctx context.Context, msg2 *envelope.DHMsg2, id envelope.SessionID, msg3 *envelope.DHMsg3) error {
	request, err := b.encode(OpExchangeMessages, id, envelope.RequestMsg2{DHMsg2: *msg2, SessionID: id})
	if err != nil {
		return err
	}
	defer request.Release()

	reply, err := b.roundTrip(ctx, OpExchangeMessages, id, request.Bytes())
	if err != nil {
		return err
	}
	defer reply.Release()

	body, err := decodeReply[envelope.ReplyMsg3](reply)
	if err != nil {
		return b.fail(OpExchangeMessages, id, err)
	}
	*msg3 = body.DHMsg3
	return nil
}

// SendRequest sends an encrypted request on session id and copies the
// reply into response. maxResponseSize tells the responder how large a
// reply the caller will accept.
//
// The copy is min(reply length, len(response)) bytes and the count is
// returned. A reply longer than response is truncated without error;
// callers detect that through the integrity check on the decrypted
// payload.
func (b *Bridge) SendRequest(ctx context.Context, id envelope.SessionID, request []byte, maxResponseSize uint64, response []byte) (int, error) {
	encoded, err := b.encode(OpSendRequest, id, envelope.EncryptedRequest{
		SessionID:       id,
		MaxResponseSize: maxResponseSize,
		Request:         request,
	})
	if err != nil {
		return 0, err
	}
	defer encoded.Release()

	reply, err := b.roundTrip(ctx, OpSendRequest, id, encoded.Bytes())
	if err != nil {
		return 0, err
	}
	defer reply.Release()

	body, err := decodeReply[envelope.EncryptedReply](reply)
	if err != nil {
		return 0, b.fail(OpSendRequest, id, err)
	}
	copied := copy(response, body.Response)
	if copied < len(body.Response) {
		b.logger().Debug("encrypted reply truncated to response capacity",
			"session_id", id,
			"reply_bytes", len(body.Response),
			"capacity", len(response),
		)
	}
	return copied, nil
}

// EndSession closes session id at the responder. The id must not be
// used again whatever the outcome. After ErrTransportFailure the
// responder may still hold the session until it expires there.
func (b *Bridge) EndSession(ctx context.Context, id envelope.SessionID) error {
	request, err := b.encode(OpEndSession, id, envelope.CloseRequest{SessionID: id})
	if err != nil {
		return err
	}
	defer request.Release()

	reply, err := b.roundTrip(ctx, OpEndSession, id, request.Bytes())
	if err != nil {
		return err
	}
	defer reply.Release()

	if _, err := decodeReply[envelope.CloseReply](reply); err != nil {
		return b.fail(OpEndSession, id, err)
	}
	return nil
}

// encode allocates a request buffer sized for body and encodes into it.
func (b *Bridge) encode(op string, id envelope.SessionID, body envelope.Body) (*buffer.Buffer, error) {
	request, err := b.allocator().Allocate(envelope.Size(body))
	if err != nil {
		return nil, b.fail(op, id, err)
	}
	if _, err := envelope.Put(request.Bytes(), body); err != nil {
		request.Release()
		return nil, b.fail(op, id, err)
	}
	return request, nil
}

// roundTrip performs the single suspension point of an operation.
func (b *Bridge) roundTrip(ctx context.Context, op string, id envelope.SessionID, request []byte) (*buffer.Buffer, error) {
	reply, err := b.Transport.SendReceive(ctx, request, b.allocator())
	if err != nil {
		// Nothing reached the responder, so the cause (typically
		// ErrOutOfMemory) passes through and the session is intact.
		if errors.Is(err, transport.ErrNotSent) {
			return nil, b.fail(op, id, err)
		}
		// A reply allocation failure happens after the request was
		// sent, so it must not read as ErrOutOfMemory.
		if errors.Is(err, buffer.ErrOutOfMemory) {
			return nil, b.fail(op, id, fmt.Errorf("%w: %v", ErrTransportFailure, err))
		}
		return nil, b.fail(op, id, fmt.Errorf("%w: %w", ErrTransportFailure, err))
	}
	b.logger().Debug("round trip complete",
		"op", op,
		"session_id", id,
		"request_bytes", len(request),
		"reply_bytes", reply.Len(),
	)
	return reply, nil
}

// fail logs and wraps err. Only the first failure of an operation
// reaches here.
func (b *Bridge) fail(op string, id envelope.SessionID, err error) error {
	b.logger().Warn("session operation failed",
		"op", op,
		"session_id", id,
		"error", err,
	)
	return &OperationError{Op: op, SessionID: id, Err: err}
}

// decodeReply decodes reply and checks that it carries a T. Error
// replies are mapped through statusError. Variable-length fields of the
// result alias reply.
func decodeReply[T envelope.Body](reply *buffer.Buffer) (T, error) {
	var zero T
	decoded, err := envelope.Decode(reply.Bytes())
	if err != nil {
		return zero, err
	}
	switch body := decoded.Body.(type) {
	case T:
		return body, nil
	case envelope.ErrorReply:
		return zero, statusError(body.Status)
	default:
		return zero, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedReply, decoded.Header.Kind, zero.Kind())
	}
}
