// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the dhbridge
// binaries.
//
// Configuration is loaded from a single file specified by either the
// DHBRIDGE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Values absent from the file keep the [Default] values.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${DHBRIDGE_RUNTIME_DIR}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// [Duration] and [ByteSize] accept human-readable YAML scalars ("30s",
// "64KiB") as well as plain integers.
//
// Key exports:
//
//   - [Config] -- responder, initiator, limits, buffers, identity, log level
//   - [Default] -- a Config with every field set
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every inconsistent value at once
package config
