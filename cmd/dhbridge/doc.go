// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dhbridge is the operator and client CLI for the session bridge.
//
// Commands:
//
//	dhbridge keygen   generate a sealed ed25519 identity
//	dhbridge call     open a session, send requests, print replies
//	dhbridge status   query a responder's control socket
//	dhbridge version  print version information
//
// call and status read the configuration named by --config or
// DHBRIDGE_CONFIG.
package main
