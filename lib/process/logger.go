// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"io"
	"log/slog"
	"os"
)

// DebugEnvironmentVariable forces debug logging when set to a
// non-empty value.
const DebugEnvironmentVariable = "DHBRIDGE_DEBUG"

// NewLogger returns a text logger writing to w at level, lowered to
// debug when DHBRIDGE_DEBUG is set.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	if os.Getenv(DebugEnvironmentVariable) != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
