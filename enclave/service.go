// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enclave

import (
	"context"

	"github.com/bureau-foundation/dhbridge/lib/envelope"
)

// Service is the application inside the responder. It sees only
// decrypted requests and returns the plaintext reply.
type Service func(ctx context.Context, id envelope.SessionID, request []byte) ([]byte, error)

// Echo returns every request unchanged.
func Echo(_ context.Context, _ envelope.SessionID, request []byte) ([]byte, error) {
	return append([]byte(nil), request...), nil
}
