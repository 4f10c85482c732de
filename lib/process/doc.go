// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the dhbridge
// binaries. It holds the raw stderr output that happens before the
// structured logger exists or after main has given up:
//
//   - [Fatal] reports an error from run() and exits with status 1.
//   - [NewLogger] builds the stderr text logger every binary uses.
package process
