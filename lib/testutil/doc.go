// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the bridge's package tests:
// bounded channel waits that fail the test instead of hanging it, and
// short socket directories that fit within sun_path.
package testutil
