// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type statusDocument struct {
	Sessions int               `cbor:"sessions"`
	Labels   map[string]string `cbor:"labels,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	value := statusDocument{
		Sessions: 3,
		Labels:   map[string]string{"zeta": "z", "alpha": "a", "mid": "m"},
	}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("Marshal produced different bytes for the same value")
		}
	}

	var decoded statusDocument
	if err := Unmarshal(first, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Sessions != 3 || decoded.Labels["alpha"] != "a" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"sessions": 2, "added_later": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded statusDocument
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Sessions != 2 {
		t.Errorf("Sessions = %d, want 2", decoded.Sessions)
	}
}

func TestUntypedMapsUseStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"k": 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type %T, want map[string]any", decoded)
	}
	if _, ok := top["nested"].(map[string]any); !ok {
		t.Fatalf("nested type %T, want map[string]any", top["nested"])
	}
}

func TestStream(t *testing.T) {
	var stream bytes.Buffer
	encoder := NewEncoder(&stream)
	for i := range 3 {
		if err := encoder.Encode(statusDocument{Sessions: i}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	decoder := NewDecoder(&stream)
	for i := range 3 {
		var decoded statusDocument
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if decoded.Sessions != i {
			t.Errorf("item %d: Sessions = %d", i, decoded.Sessions)
		}
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	type wrapper struct {
		Action string     `cbor:"action"`
		Data   RawMessage `cbor:"data"`
	}
	inner, _ := Marshal(statusDocument{Sessions: 9})
	data, err := Marshal(wrapper{Action: "status", Data: inner})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var outer wrapper
	if err := Unmarshal(data, &outer); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	var decoded statusDocument
	if err := Unmarshal(outer.Data, &decoded); err != nil {
		t.Fatalf("Unmarshal inner: %v", err)
	}
	if decoded.Sessions != 9 {
		t.Errorf("Sessions = %d, want 9", decoded.Sessions)
	}
}

func TestDiagnose(t *testing.T) {
	data, _ := Marshal(map[string]int{"sessions": 1})
	text, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(text, `"sessions": 1`) {
		t.Errorf("Diagnose = %q", text)
	}
}
