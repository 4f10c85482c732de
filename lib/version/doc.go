// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the dhbridge
// binaries.
//
// The release stamps come from -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/dhbridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// The variables are [GitCommit], [GitDirty] ("true" when the tree had
// uncommitted changes), [BuildTime] and [Version]. Without a commit
// stamp, [Current] falls back to the vcs.revision, vcs.modified and
// vcs.time settings the go command embeds, so plain `go build` and
// `go install` binaries still identify themselves.
//
// [Info] is the one-line form the responder logs at startup. [Full]
// and [Print] add the Go toolchain and platform for --version output.
package version
