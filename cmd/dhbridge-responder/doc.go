// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dhbridge-responder is the responder daemon. It unseals its ed25519
// identity, serves the envelope protocol on responder.socket_path with
// the reference enclave and an echo service, and serves the CBOR
// control socket (status, list-sessions, end-session) on
// responder.control_socket_path. Idle sessions are reaped in the
// background.
//
// Configuration comes from --config or DHBRIDGE_CONFIG. SIGINT and
// SIGTERM shut the daemon down gracefully; buffers still outstanding
// at that point are logged.
package main
