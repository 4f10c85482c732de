// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR encoding used on the responder's control
// socket and in the status documents the CLI prints.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 section 4.2), so
// the same value always produces the same bytes. Decoding ignores
// unknown fields, which lets the daemon add status fields without
// breaking older CLIs. Callers import this package rather than
// fxamacker/cbor so the options are set in one place.
//
// The session envelope format is NOT CBOR; it is a fixed binary layout
// defined in lib/envelope.
package codec
