// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written in YAML as a Go duration string
// ("90s", "5m") or an integer number of nanoseconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if nanoseconds, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(nanoseconds)
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// ByteSize is a size in bytes written in YAML as an integer or with a
// binary unit suffix (B, KiB, MiB, GiB).
type ByteSize uint64

// Binary size units.
const (
	KiB ByteSize = 1 << 10
	MiB ByteSize = 1 << 20
	GiB ByteSize = 1 << 30
)

var byteUnits = []struct {
	suffix string
	size   ByteSize
}{
	{"GiB", GiB},
	{"MiB", MiB},
	{"KiB", KiB},
	{"B", 1},
}

// ParseByteSize parses "65536", "64KiB" or "1 MiB".
func ParseByteSize(text string) (ByteSize, error) {
	text = strings.TrimSpace(text)
	multiplier := ByteSize(1)
	for _, unit := range byteUnits {
		if number, found := strings.CutSuffix(text, unit.suffix); found {
			text = strings.TrimSpace(number)
			multiplier = unit.size
			break
		}
	}
	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", text)
	}
	if value > uint64(^ByteSize(0)/multiplier) {
		return 0, fmt.Errorf("byte size %s overflows", text)
	}
	return ByteSize(value) * multiplier, nil
}

// String formats s with the largest unit that divides it exactly.
func (s ByteSize) String() string {
	for _, unit := range byteUnits {
		if s != 0 && s%unit.size == 0 {
			return fmt.Sprintf("%d%s", s/unit.size, unit.suffix)
		}
	}
	return "0B"
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: byte size must be a scalar", node.Line)
	}
	parsed, err := ParseByteSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s ByteSize) MarshalYAML() (any, error) {
	return s.String(), nil
}
