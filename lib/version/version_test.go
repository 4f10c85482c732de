// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func setStamps(t *testing.T, commit, dirty, buildTime string) {
	t.Helper()
	savedCommit, savedDirty, savedTime := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = savedCommit, savedDirty, savedTime })
	GitCommit, GitDirty, BuildTime = commit, dirty, buildTime
}

func TestLinkerStampsWin(t *testing.T) {
	setStamps(t, "abc1234", "false", "2026-10-18T00:00:00Z")

	if got, want := Info(), Version+" (abc1234, 2026-10-18T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "true"
	build := Current()
	if !build.Dirty || !strings.Contains(build.String(), "abc1234-dirty") {
		t.Errorf("Current() = %+v, want a dirty build", build)
	}
	if build.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", build.Platform)
	}
}

func TestVCSSettingsFallback(t *testing.T) {
	build := Build{Commit: "unknown", Time: "unknown"}
	build.fromSettings([]debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-10-17T12:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	})
	if build.Commit != "0123456789ab" {
		t.Errorf("Commit = %q, want the first 12 hex digits", build.Commit)
	}
	if build.Time != "2026-10-17T12:00:00Z" || !build.Dirty {
		t.Errorf("build = %+v", build)
	}

	stamped := Build{Commit: "unknown", Time: "2026-01-01T00:00:00Z"}
	stamped.fromSettings([]debug.BuildSetting{{Key: "vcs.time", Value: "2026-10-17T12:00:00Z"}})
	if stamped.Time != "2026-01-01T00:00:00Z" {
		t.Errorf("linker build time overwritten: %q", stamped.Time)
	}
}

func TestPrint(t *testing.T) {
	setStamps(t, "abc1234", "false", "unknown")

	var out bytes.Buffer
	Print(&out, "dhbridge-responder")
	if !strings.HasPrefix(out.String(), "dhbridge-responder "+Version+" (abc1234") {
		t.Errorf("Print output = %q", out.String())
	}
	if !strings.Contains(out.String(), runtime.Version()) {
		t.Errorf("Print output lacks the Go version: %q", out.String())
	}
}
